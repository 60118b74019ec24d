package database

import (
	"context"
	"time"

	"uptime/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) AppendHistory(ctx context.Context, entry *models.StatusHistory) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// UpsertDailyStat 在事务中读取（或新建）当天统计，执行 fold 后写回
func (s *Store) UpsertDailyStat(ctx context.Context, monitorID uint32, date string, fold func(*models.DailyStat)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("monitor_id = ? AND date = ?", monitorID, date)
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var stat models.DailyStat
		if err := q.Limit(1).Find(&stat).Error; err != nil {
			return err
		}
		if stat.ID == 0 {
			stat = models.DailyStat{MonitorID: monitorID, Date: date}
		}
		fold(&stat)
		return tx.Save(&stat).Error
	})
}

func (s *Store) ListHistorySince(ctx context.Context, monitorID uint32, since time.Time) ([]models.StatusHistory, error) {
	var entries []models.StatusHistory
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND timestamp >= ?", monitorID, since).
		Order("timestamp asc").
		Find(&entries).Error
	return entries, err
}

func (s *Store) ListDailyStats(ctx context.Context, monitorID uint32, from, to string) ([]models.DailyStat, error) {
	var stats []models.DailyStat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND date >= ? AND date <= ?", monitorID, from, to).
		Order("date asc").
		Find(&stats).Error
	return stats, err
}
