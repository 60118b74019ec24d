package database

import (
	"context"
	"time"

	"uptime/internal/models"

	"gorm.io/gorm"
)

func (s *Store) GetAgent(ctx context.Context, id uint32) (*models.Agent, error) {
	return first[models.Agent](s.db.WithContext(ctx), id)
}

func (s *Store) ListAgents(ctx context.Context, userID uint32) ([]models.Agent, error) {
	var list []models.Agent
	q := s.db.WithContext(ctx).Order("id")
	if userID != 0 {
		q = q.Where("created_by = ?", userID)
	}
	err := q.Find(&list).Error
	return list, err
}

func (s *Store) ListAgentsByStatus(ctx context.Context, status string) ([]models.Agent, error) {
	var list []models.Agent
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("id").Find(&list).Error
	return list, err
}

func (s *Store) CreateAgent(ctx context.Context, a *models.Agent) error {
	a.Status = models.AgentPending
	return s.db.WithContext(ctx).Create(a).Error
}

// SaveAgent 保存客户端状态和最近一次指标
func (s *Store) SaveAgent(ctx context.Context, a *models.Agent) error {
	return s.db.WithContext(ctx).Save(a).Error
}

// RenameAgent 只更新名称，不覆盖上报的指标
func (s *Store) RenameAgent(ctx context.Context, id uint32, name string) error {
	return s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Update("name", name).Error
}

// MarkAgentOffline 仅当客户端仍在线且最近上报早于 cutoff 时置为离线，返回是否更新
func (s *Store) MarkAgentOffline(ctx context.Context, id uint32, cutoff time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Agent{}).
		Where("id = ? AND status = ? AND (last_seen IS NULL OR last_seen < ?)", id, models.AgentOnline, cutoff).
		Update("status", models.AgentOffline)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteAgent 删除客户端及其专属通知设置
func (s *Store) DeleteAgent(ctx context.Context, id uint32) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Agent{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("target_type = ? AND target_id = ?", models.TargetAgent, id).
			Delete(&models.NotificationSettings{}).Error
	})
}
