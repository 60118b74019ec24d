package database

import (
	"context"
	"errors"
	"slices"

	"uptime/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ---- 通知设置 ----

func (s *Store) GetNotificationSettings(ctx context.Context, userID uint32, targetType string, targetID uint32) (*models.NotificationSettings, error) {
	return first[models.NotificationSettings](s.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID))
}

func (s *Store) ListNotificationSettings(ctx context.Context, userID uint32) ([]models.NotificationSettings, error) {
	var list []models.NotificationSettings
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&list).Error
	return list, err
}

// UpsertNotificationSettings 按 (user_id, target_type, target_id) 插入或整体覆盖
func (s *Store) UpsertNotificationSettings(ctx context.Context, settings *models.NotificationSettings) error {
	if settings.TargetType == models.TargetGlobalMonitor || settings.TargetType == models.TargetGlobalAgent {
		settings.TargetID = 0
	}
	if settings.Channels == nil {
		settings.Channels = []uint32{}
	}
	settings.ID = 0

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "target_type"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "on_down", "on_recovery", "on_offline",
			"on_cpu_threshold", "cpu_threshold",
			"on_memory_threshold", "memory_threshold",
			"on_disk_threshold", "disk_threshold",
			"channels", "template_id", "updated_at",
		}),
	}).Create(settings).Error
	if err != nil {
		return err
	}

	stored, err := s.GetNotificationSettings(ctx, settings.UserID, settings.TargetType, settings.TargetID)
	if err != nil {
		return err
	}
	if stored != nil {
		*settings = *stored
	}
	return nil
}

func (s *Store) DeleteNotificationSettings(ctx context.Context, userID uint32, targetType string, targetID uint32) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
		Delete(&models.NotificationSettings{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ---- 通知渠道 ----

func (s *Store) GetChannel(ctx context.Context, id uint32) (*models.NotificationChannel, error) {
	return first[models.NotificationChannel](s.db.WithContext(ctx), id)
}

func (s *Store) ListChannels(ctx context.Context, userID uint32) ([]models.NotificationChannel, error) {
	var list []models.NotificationChannel
	q := s.db.WithContext(ctx).Order("id")
	if userID != 0 {
		q = q.Where("created_by = ?", userID)
	}
	err := q.Find(&list).Error
	return list, err
}

func (s *Store) CreateChannel(ctx context.Context, c *models.NotificationChannel) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) UpdateChannel(ctx context.Context, c *models.NotificationChannel) error {
	res := s.db.WithContext(ctx).Model(&models.NotificationChannel{ID: c.ID}).
		Select("name", "type", "config", "enabled").
		Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteChannel 删除渠道，同时从所有通知设置中移除该渠道并清理其发送记录
func (s *Store) DeleteChannel(ctx context.Context, id uint32) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.NotificationChannel{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		// JSON 查询语法各数据库不同，这里在内存中过滤
		var all []models.NotificationSettings
		if err := tx.Find(&all).Error; err != nil {
			return err
		}
		for _, st := range all {
			if !slices.Contains(st.Channels, id) {
				continue
			}
			kept := slices.DeleteFunc(slices.Clone(st.Channels), func(c uint32) bool { return c == id })
			if err := tx.Model(&models.NotificationSettings{}).Where("id = ?", st.ID).
				Update("channels", kept).Error; err != nil {
				return err
			}
		}

		return tx.Where("channel_id = ?", id).Delete(&models.NotificationHistory{}).Error
	})
}

// ---- 通知模板 ----

func (s *Store) GetTemplate(ctx context.Context, id uint32) (*models.NotificationTemplate, error) {
	return first[models.NotificationTemplate](s.db.WithContext(ctx), id)
}

// FindTemplate 优先返回用户该类型的默认模板，其次任意同类型模板
func (s *Store) FindTemplate(ctx context.Context, ownerID uint32, templateType string) (*models.NotificationTemplate, error) {
	var list []models.NotificationTemplate
	err := s.db.WithContext(ctx).
		Where("created_by = ? AND type = ?", ownerID, templateType).
		Order("is_default desc").Order("id asc").
		Limit(1).Find(&list).Error
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) ListTemplates(ctx context.Context, userID uint32, templateType string) ([]models.NotificationTemplate, error) {
	var list []models.NotificationTemplate
	q := s.db.WithContext(ctx).Order("id")
	if userID != 0 {
		q = q.Where("created_by = ?", userID)
	}
	if templateType != "" {
		q = q.Where("type = ?", templateType)
	}
	err := q.Find(&list).Error
	return list, err
}

// SaveTemplate 创建或更新模板；设为默认时取消同用户同类型的其他默认模板
func (s *Store) SaveTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.IsDefault {
			q := tx.Model(&models.NotificationTemplate{}).
				Where("created_by = ? AND type = ? AND is_default = ?", t.CreatedBy, t.Type, true)
			if t.ID != 0 {
				q = q.Where("id <> ?", t.ID)
			}
			if err := q.Update("is_default", false).Error; err != nil {
				return err
			}
		}
		if t.ID == 0 {
			return tx.Create(t).Error
		}
		res := tx.Model(&models.NotificationTemplate{ID: t.ID}).
			Select("name", "type", "subject", "content", "is_default").
			Updates(t)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// DeleteTemplate 删除模板并解除通知设置对它的引用
func (s *Store) DeleteTemplate(ctx context.Context, id uint32) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.NotificationTemplate{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.NotificationSettings{}).Where("template_id = ?", id).
			Update("template_id", nil).Error
	})
}

// ---- 通知记录 ----

func (s *Store) AppendNotificationHistory(ctx context.Context, h *models.NotificationHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}

// HistoryFilter 通知记录查询条件
type HistoryFilter struct {
	Type     string
	TargetID *uint32
	Status   string
	Limit    int
	Offset   int
}

// ListNotificationHistory 按发送时间倒序分页查询，返回记录和总数
func (s *Store) ListNotificationHistory(ctx context.Context, f HistoryFilter) ([]models.NotificationHistory, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.NotificationHistory{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.TargetID != nil {
		q = q.Where("target_id = ?", *f.TargetID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	var list []models.NotificationHistory
	err := q.Order("sent_at desc").Order("id desc").Limit(limit).Offset(f.Offset).Find(&list).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}
	return list, total, err
}
