package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptime/internal/logger"
	"uptime/internal/models"

	"go.uber.org/zap"
)

// ErrHistoryWrite wraps failures to persist a history entry.
var ErrHistoryWrite = errors.New("history write failed")

const DateLayout = "2006-01-02"

// Repository persists history and daily aggregates.
type Repository interface {
	AppendHistory(ctx context.Context, entry *models.StatusHistory) error
	// UpsertDailyStat loads or creates the (monitor, date) row, applies fold
	// and saves it atomically.
	UpsertDailyStat(ctx context.Context, monitorID uint32, date string, fold func(*models.DailyStat)) error
	ListHistorySince(ctx context.Context, monitorID uint32, since time.Time) ([]models.StatusHistory, error)
	ListDailyStats(ctx context.Context, monitorID uint32, from, to string) ([]models.DailyStat, error)
}

// Service records checks into the recent window and the daily rollup.
type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService creates a history service. Daily buckets are cut in loc (UTC if nil).
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, now: time.Now}
}

// Day returns the bucket key for t.
func (s *Service) Day(t time.Time) string {
	return t.In(s.loc).Format(DateLayout)
}

// Record appends entry and folds it into its day's aggregate. Failures are
// logged and returned wrapped in ErrHistoryWrite; callers treat them as
// non-fatal. The rollup is skipped when the append fails so aggregates never
// count checks missing from the history.
func (s *Service) Record(ctx context.Context, entry *models.StatusHistory) error {
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		logger.Error("Failed to append status history",
			zap.Uint32("monitor_id", entry.MonitorID),
			zap.Error(err))
		return fmt.Errorf("%w: append: %v", ErrHistoryWrite, err)
	}
	if err := s.Rollup(ctx, entry.MonitorID, s.Day(entry.Timestamp), entry); err != nil {
		logger.Error("Failed to update daily stats",
			zap.Uint32("monitor_id", entry.MonitorID),
			zap.Error(err))
		return fmt.Errorf("%w: rollup: %v", ErrHistoryWrite, err)
	}
	return nil
}

// Rollup folds entry into the monitor's aggregate for day.
func (s *Service) Rollup(ctx context.Context, monitorID uint32, day string, entry *models.StatusHistory) error {
	return s.repo.UpsertDailyStat(ctx, monitorID, day, func(stat *models.DailyStat) {
		Fold(stat, entry)
	})
}

// Recent returns the last 24 hours of checks, oldest first.
func (s *Service) Recent(ctx context.Context, monitorID uint32) ([]models.StatusHistory, error) {
	return s.repo.ListHistorySince(ctx, monitorID, s.now().Add(-24*time.Hour))
}

// Daily returns aggregates for the last n days including today, oldest first.
func (s *Service) Daily(ctx context.Context, monitorID uint32, days int) ([]models.DailyStat, error) {
	if days <= 0 {
		days = 30
	}
	today := s.now().In(s.loc)
	from := today.AddDate(0, 0, -(days - 1)).Format(DateLayout)
	return s.repo.ListDailyStats(ctx, monitorID, from, today.Format(DateLayout))
}
