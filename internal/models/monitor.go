package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// 监控状态
const (
	StatusPending = "pending"
	StatusUp      = "up"
	StatusDown    = "down"
)

// Monitor HTTP 监控目标
type Monitor struct {
	ID             uint32            `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"size:255;not null" json:"name"`
	URL            string            `gorm:"size:2048;not null" json:"url"`
	Method         string            `gorm:"size:10;default:GET" json:"method"`
	Headers        datatypes.JSONMap `json:"headers"`
	Body           string            `gorm:"type:text" json:"body"`
	Interval       int64             `gorm:"default:60" json:"interval"` // seconds
	Timeout        int64             `gorm:"default:30" json:"timeout"`  // seconds
	ExpectedStatus int               `gorm:"default:200" json:"expected_status"`
	Active         bool              `gorm:"index" json:"active"`

	// Runtime state, written by the scheduler only
	Status       string     `gorm:"size:20;default:pending" json:"status"`
	LastChecked  *time.Time `json:"last_checked"`
	ResponseTime int64      `json:"response_time"` // milliseconds

	CreatedBy uint32    `gorm:"index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Monitor) TableName() string {
	return "monitors"
}

// HeaderMap flattens the JSON headers column into string values.
func (m *Monitor) HeaderMap() map[string]string {
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case nil:
		default:
			headers[k] = fmt.Sprint(val)
		}
	}
	return headers
}

// StatusHistory 24 小时热表中的单次检查记录
type StatusHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MonitorID    uint32    `gorm:"not null;index:idx_history_monitor_time" json:"monitor_id"`
	Timestamp    time.Time `gorm:"not null;index:idx_history_monitor_time" json:"timestamp"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	ResponseTime int64     `json:"response_time"`
	StatusCode   int       `json:"status_code"`
	Error        *string   `gorm:"type:text" json:"error"`
}

func (StatusHistory) TableName() string {
	return "monitor_status_history_24h"
}

// DailyStat 每日聚合统计，按检查结果增量折叠
type DailyStat struct {
	ID                uint    `gorm:"primaryKey" json:"id"`
	MonitorID         uint32  `gorm:"not null;uniqueIndex:idx_daily_monitor_date" json:"monitor_id"`
	Date              string  `gorm:"size:10;not null;uniqueIndex:idx_daily_monitor_date" json:"date"` // YYYY-MM-DD
	TotalChecks       int64   `json:"total_checks"`
	UpChecks          int64   `json:"up_checks"`
	DownChecks        int64   `json:"down_checks"`
	TotalResponseTime int64   `json:"total_response_time"`
	AvgResponseTime   float64 `json:"avg_response_time"`
	MinResponseTime   int64   `json:"min_response_time"`
	MaxResponseTime   int64   `json:"max_response_time"`
	Availability      float64 `json:"availability"` // percent
	OutageCount       int64   `json:"outage_count"`
	LastStatus        string  `gorm:"size:20" json:"last_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DailyStat) TableName() string {
	return "monitor_daily_stats"
}
