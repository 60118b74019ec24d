package alert

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedChannel   = errors.New("unsupported channel type")
	ErrInvalidChannelConfig = errors.New("invalid channel config")
)

// EventKind 事件类型
type EventKind string

const (
	EventDown            EventKind = "down"
	EventRecovery        EventKind = "recovery"
	EventOffline         EventKind = "offline"
	EventCPUThreshold    EventKind = "cpu_threshold"
	EventMemoryThreshold EventKind = "memory_threshold"
	EventDiskThreshold   EventKind = "disk_threshold"
)

// 事件目标类型，同时作为模板类型
const (
	TargetMonitor = "monitor"
	TargetAgent   = "agent"
)

// Event 监控或客户端的一次状态变化
type Event struct {
	ID       string
	Kind     EventKind
	Target   string
	TargetID uint32
	OwnerID  uint32
	Vars     map[string]string
	Time     time.Time
}

// NewEvent 创建事件并生成事件ID
func NewEvent(kind EventKind, target string, targetID, ownerID uint32, vars map[string]string, at time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		Target:   target,
		TargetID: targetID,
		OwnerID:  ownerID,
		Vars:     vars,
		Time:     at,
	}
}

// MetricSample 客户端上报的资源使用率（百分比）
type MetricSample struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}
