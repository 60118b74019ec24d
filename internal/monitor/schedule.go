package monitor

import (
	"time"

	"uptime/internal/alert"
	"uptime/internal/models"
)

const defaultInterval = 60 * time.Second

// IsDue 判断监控是否到期，从未检查过的监控总是到期
func IsDue(m *models.Monitor, now time.Time) bool {
	if m.LastChecked == nil {
		return true
	}
	interval := time.Duration(m.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	return !now.Before(m.LastChecked.Add(interval))
}

// DetectTransition 返回状态变化产生的事件，
// 连续 down 以及 pending 到 up 不产生事件
func DetectTransition(previous, current string) (alert.EventKind, bool) {
	switch {
	case current == models.StatusDown && previous != models.StatusDown:
		return alert.EventDown, true
	case previous == models.StatusDown && current == models.StatusUp:
		return alert.EventRecovery, true
	default:
		return "", false
	}
}
