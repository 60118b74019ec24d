package models

import (
	"time"

	"gorm.io/datatypes"
)

// 通知设置的目标类型
const (
	TargetGlobalMonitor = "global-monitor"
	TargetGlobalAgent   = "global-agent"
	TargetMonitor       = "monitor"
	TargetAgent         = "agent"
)

// 通知发送结果
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// NotificationChannel 通知渠道
type NotificationChannel struct {
	ID        uint32            `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"size:255;not null" json:"name"`
	Type      string            `gorm:"size:50;not null" json:"type"` // telegram, resend, feishu, wecom, webhook
	Config    datatypes.JSONMap `json:"config"`
	Enabled   bool              `json:"enabled"`
	CreatedBy uint32            `gorm:"index" json:"created_by"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (NotificationChannel) TableName() string {
	return "notification_channels"
}

// NotificationTemplate 通知模板，subject/content 中可使用 ${var} 占位符
type NotificationTemplate struct {
	ID        uint32    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Type      string    `gorm:"size:20;not null;index" json:"type"` // monitor, agent
	Subject   string    `gorm:"size:500" json:"subject"`
	Content   string    `gorm:"type:text" json:"content"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedBy uint32    `gorm:"index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NotificationTemplate) TableName() string {
	return "notification_templates"
}

// NotificationSettings 通知设置，全局设置的 TargetID 为 0
type NotificationSettings struct {
	ID         uint32 `gorm:"primaryKey" json:"id"`
	UserID     uint32 `gorm:"not null;uniqueIndex:idx_settings_target" json:"user_id"`
	TargetType string `gorm:"size:20;not null;uniqueIndex:idx_settings_target" json:"target_type"`
	TargetID   uint32 `gorm:"not null;default:0;uniqueIndex:idx_settings_target" json:"target_id"`

	Enabled    bool `gorm:"default:false" json:"enabled"`
	OnDown     bool `json:"on_down"`
	OnRecovery bool `json:"on_recovery"`
	OnOffline  bool `json:"on_offline"`

	OnCPUThreshold    bool    `gorm:"column:on_cpu_threshold" json:"on_cpu_threshold"`
	CPUThreshold      float64 `gorm:"column:cpu_threshold" json:"cpu_threshold"`
	OnMemoryThreshold bool    `json:"on_memory_threshold"`
	MemoryThreshold   float64 `json:"memory_threshold"`
	OnDiskThreshold   bool    `json:"on_disk_threshold"`
	DiskThreshold     float64 `json:"disk_threshold"`

	Channels   datatypes.JSONSlice[uint32] `json:"channels"`
	TemplateID *uint32                     `json:"template_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NotificationSettings) TableName() string {
	return "notification_settings"
}

// NotificationHistory 通知发送记录，每个渠道每次尝试一行
type NotificationHistory struct {
	ID         uint32    `gorm:"primaryKey" json:"id"`
	EventID    string    `gorm:"size:36;index" json:"event_id"`
	Type       string    `gorm:"size:20;not null;index" json:"type"` // monitor, agent
	TargetID   uint32    `gorm:"index" json:"target_id"`
	ChannelID  uint32    `gorm:"index" json:"channel_id"`
	TemplateID *uint32   `json:"template_id,omitempty"`
	Status     string    `gorm:"size:20;not null" json:"status"` // sent, failed
	Content    string    `gorm:"type:text" json:"content"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	SentAt     time.Time `gorm:"index" json:"sent_at"`
}

func (NotificationHistory) TableName() string {
	return "notification_history"
}
