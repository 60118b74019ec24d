package database

import (
	"context"
	"net/http"
	"time"

	"uptime/internal/models"

	"gorm.io/gorm"
)

func (s *Store) ListActiveMonitors(ctx context.Context) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&monitors).Error
	return monitors, err
}

// ListMonitors 列出用户的监控，userID 为 0 时列出全部
func (s *Store) ListMonitors(ctx context.Context, userID uint32) ([]models.Monitor, error) {
	var monitors []models.Monitor
	q := s.db.WithContext(ctx).Order("id")
	if userID != 0 {
		q = q.Where("created_by = ?", userID)
	}
	err := q.Find(&monitors).Error
	return monitors, err
}

func (s *Store) GetMonitor(ctx context.Context, id uint32) (*models.Monitor, error) {
	return first[models.Monitor](s.db.WithContext(ctx), id)
}

// CreateMonitor 创建监控，未设置的字段使用默认值
func (s *Store) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	if m.Method == "" {
		m.Method = http.MethodGet
	}
	if m.Interval <= 0 {
		m.Interval = 60
	}
	if m.Timeout <= 0 {
		m.Timeout = 30
	}
	if m.ExpectedStatus == 0 {
		m.ExpectedStatus = http.StatusOK
	}
	m.Status = models.StatusPending
	m.LastChecked = nil
	return s.db.WithContext(ctx).Create(m).Error
}

// UpdateMonitor 更新用户可编辑字段，不触碰运行状态
func (s *Store) UpdateMonitor(ctx context.Context, m *models.Monitor) error {
	res := s.db.WithContext(ctx).Model(&models.Monitor{ID: m.ID}).
		Select("name", "url", "method", "headers", "body", "interval", "timeout", "expected_status", "active").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) UpdateMonitorRuntimeState(ctx context.Context, id uint32, status string, checkedAt time.Time, responseTime int64) error {
	return s.db.WithContext(ctx).Model(&models.Monitor{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"last_checked":  checkedAt,
		"response_time": responseTime,
	}).Error
}

// DeleteMonitor 删除监控及其历史、每日统计和专属通知设置
func (s *Store) DeleteMonitor(ctx context.Context, id uint32) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Monitor{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("monitor_id = ?", id).Delete(&models.StatusHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("monitor_id = ?", id).Delete(&models.DailyStat{}).Error; err != nil {
			return err
		}
		return tx.Where("target_type = ? AND target_id = ?", models.TargetMonitor, id).
			Delete(&models.NotificationSettings{}).Error
	})
}
