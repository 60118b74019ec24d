package models

import (
	"time"

	"gorm.io/datatypes"
)

// 客户端状态
const (
	AgentPending = "pending"
	AgentOnline  = "online"
	AgentOffline = "offline"
)

// Agent 远程客户端，保存最近一次上报的指标用于阈值边沿检测
type Agent struct {
	ID          uint32                      `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"size:255;not null" json:"name"`
	Hostname    string                      `gorm:"size:255" json:"hostname"`
	IPAddresses datatypes.JSONSlice[string] `json:"ip_addresses"`
	OS          string                      `gorm:"size:100" json:"os"`
	Status      string                      `gorm:"size:20;default:pending" json:"status"`
	LastSeen    *time.Time                  `json:"last_seen"`

	CPUUsage    float64 `gorm:"column:cpu_usage" json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`

	CreatedBy uint32    `gorm:"index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}
