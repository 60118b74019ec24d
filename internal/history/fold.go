package history

import (
	"uptime/internal/models"
)

// Fold adds one check to a day's aggregate. An outage starts whenever a down
// check follows anything other than a down check on the same day.
func Fold(stat *models.DailyStat, entry *models.StatusHistory) {
	first := stat.TotalChecks == 0

	stat.TotalChecks++
	switch entry.Status {
	case models.StatusUp:
		stat.UpChecks++
	case models.StatusDown:
		stat.DownChecks++
		if stat.LastStatus != models.StatusDown {
			stat.OutageCount++
		}
	}

	rt := entry.ResponseTime
	stat.TotalResponseTime += rt
	if first || rt < stat.MinResponseTime {
		stat.MinResponseTime = rt
	}
	if first || rt > stat.MaxResponseTime {
		stat.MaxResponseTime = rt
	}
	stat.AvgResponseTime = float64(stat.TotalResponseTime) / float64(stat.TotalChecks)
	stat.Availability = float64(stat.UpChecks) / float64(stat.TotalChecks) * 100
	stat.LastStatus = entry.Status
}
