package server

import (
	"fmt"
	"net/http"
	"strings"

	"uptime/internal/alert"
	"uptime/internal/models"

	"gorm.io/datatypes"
)

// MonitorRequest is the editable part of a monitor.
type MonitorRequest struct {
	Name           string            `json:"name" binding:"required"`
	URL            string            `json:"url" binding:"required,url"`
	Method         string            `json:"method" binding:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS get post put patch delete head options"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body"`
	Interval       int64             `json:"interval" binding:"omitempty,min=10,max=86400"` // seconds
	Timeout        int64             `json:"timeout" binding:"omitempty,min=1,max=300"`     // seconds
	ExpectedStatus int               `json:"expected_status" binding:"omitempty,min=100,max=599"`
	Active         *bool             `json:"active"`
}

// ConvertMonitorRequest builds a new monitor owned by userID.
func ConvertMonitorRequest(req MonitorRequest, userID uint32) *models.Monitor {
	m := &models.Monitor{Active: true, CreatedBy: userID}
	ApplyMonitorRequest(m, req)
	return m
}

// ApplyMonitorRequest copies request fields onto m, filling defaults.
func ApplyMonitorRequest(m *models.Monitor, req MonitorRequest) {
	m.Name = strings.TrimSpace(req.Name)
	m.URL = strings.TrimSpace(req.URL)
	m.Method = strings.ToUpper(req.Method)
	if m.Method == "" {
		m.Method = http.MethodGet
	}
	m.Headers = datatypes.JSONMap{}
	for k, v := range req.Headers {
		m.Headers[k] = v
	}
	m.Body = req.Body
	m.Interval = req.Interval
	if m.Interval == 0 {
		m.Interval = 60
	}
	m.Timeout = req.Timeout
	if m.Timeout == 0 {
		m.Timeout = 30
	}
	m.ExpectedStatus = req.ExpectedStatus
	if m.ExpectedStatus == 0 {
		m.ExpectedStatus = http.StatusOK
	}
	if req.Active != nil {
		m.Active = *req.Active
	}
}

// ChannelRequest creates or replaces a notification channel.
type ChannelRequest struct {
	Name    string                 `json:"name" binding:"required"`
	Type    string                 `json:"type" binding:"required,oneof=telegram resend feishu wecom webhook"`
	Config  map[string]interface{} `json:"config" binding:"required"`
	Enabled *bool                  `json:"enabled"`
}

// ConvertChannelRequest validates the provider config before it is stored.
func ConvertChannelRequest(req ChannelRequest, userID uint32) (*models.NotificationChannel, error) {
	if _, err := alert.DecodeConfig(req.Type, req.Config); err != nil {
		return nil, err
	}
	ch := &models.NotificationChannel{
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Config:    datatypes.JSONMap(req.Config),
		Enabled:   true,
		CreatedBy: userID,
	}
	if req.Enabled != nil {
		ch.Enabled = *req.Enabled
	}
	return ch, nil
}

// TemplateRequest creates or replaces a notification template.
type TemplateRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type" binding:"required,oneof=monitor agent"`
	Subject   string `json:"subject"`
	Content   string `json:"content" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

func ConvertTemplateRequest(req TemplateRequest, userID uint32) *models.NotificationTemplate {
	return &models.NotificationTemplate{
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Subject:   req.Subject,
		Content:   req.Content,
		IsDefault: req.IsDefault,
		CreatedBy: userID,
	}
}

// SettingsRequest replaces the settings record of one target.
type SettingsRequest struct {
	TargetType string `json:"target_type" binding:"required,oneof=global-monitor global-agent monitor agent"`
	TargetID   uint32 `json:"target_id"`

	Enabled    bool `json:"enabled"`
	OnDown     bool `json:"on_down"`
	OnRecovery bool `json:"on_recovery"`
	OnOffline  bool `json:"on_offline"`

	OnCPUThreshold    bool     `json:"on_cpu_threshold"`
	CPUThreshold      *float64 `json:"cpu_threshold" binding:"omitempty,min=0,max=100"`
	OnMemoryThreshold bool     `json:"on_memory_threshold"`
	MemoryThreshold   *float64 `json:"memory_threshold" binding:"omitempty,min=0,max=100"`
	OnDiskThreshold   bool     `json:"on_disk_threshold"`
	DiskThreshold     *float64 `json:"disk_threshold" binding:"omitempty,min=0,max=100"`

	Channels   []uint32 `json:"channels"`
	TemplateID *uint32  `json:"template_id"`
}

// IsGlobal reports whether the request addresses a global record.
func (r SettingsRequest) IsGlobal() bool {
	return r.TargetType == models.TargetGlobalMonitor || r.TargetType == models.TargetGlobalAgent
}

// TemplateType is the template type usable by this target.
func (r SettingsRequest) TemplateType() string {
	if r.TargetType == models.TargetGlobalAgent || r.TargetType == models.TargetAgent {
		return alert.TargetAgent
	}
	return alert.TargetMonitor
}

func ConvertSettingsRequest(req SettingsRequest, userID uint32) (*models.NotificationSettings, error) {
	if !req.IsGlobal() && req.TargetID == 0 {
		return nil, fmt.Errorf("target_id is required for %s settings", req.TargetType)
	}
	targetID := req.TargetID
	if req.IsGlobal() {
		targetID = 0
	}
	channels := make([]uint32, 0, len(req.Channels))
	seen := make(map[uint32]bool, len(req.Channels))
	for _, id := range req.Channels {
		if !seen[id] {
			seen[id] = true
			channels = append(channels, id)
		}
	}
	return &models.NotificationSettings{
		UserID:            userID,
		TargetType:        req.TargetType,
		TargetID:          targetID,
		Enabled:           req.Enabled,
		OnDown:            req.OnDown,
		OnRecovery:        req.OnRecovery,
		OnOffline:         req.OnOffline,
		OnCPUThreshold:    req.OnCPUThreshold,
		CPUThreshold:      valueOr(req.CPUThreshold, 90),
		OnMemoryThreshold: req.OnMemoryThreshold,
		MemoryThreshold:   valueOr(req.MemoryThreshold, 85),
		OnDiskThreshold:   req.OnDiskThreshold,
		DiskThreshold:     valueOr(req.DiskThreshold, 90),
		Channels:          channels,
		TemplateID:        req.TemplateID,
	}, nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
