package alert

import (
	"context"
	"fmt"

	"uptime/internal/models"
)

// 策略来源
const (
	SourceNone     = "none"
	SourceGlobal   = "global"
	SourceSpecific = "specific"
)

// Policy 目标的生效通知设置
type Policy struct {
	Source   string
	Settings models.NotificationSettings
}

// Resolve 选择生效设置，专属设置整体覆盖全局设置，不做字段级合并
func Resolve(global, specific *models.NotificationSettings) Policy {
	switch {
	case specific != nil:
		return Policy{Source: SourceSpecific, Settings: *specific}
	case global != nil:
		return Policy{Source: SourceGlobal, Settings: *global}
	default:
		return Policy{Source: SourceNone}
	}
}

func (p Policy) Enabled() bool {
	return p.Source != SourceNone && p.Settings.Enabled
}

// Allows 判断该类型事件是否需要发送
func (p Policy) Allows(kind EventKind) bool {
	if !p.Enabled() {
		return false
	}
	s := p.Settings
	switch kind {
	case EventDown:
		return s.OnDown
	case EventRecovery:
		return s.OnRecovery
	case EventOffline:
		return s.OnOffline
	case EventCPUThreshold:
		return s.OnCPUThreshold
	case EventMemoryThreshold:
		return s.OnMemoryThreshold
	case EventDiskThreshold:
		return s.OnDiskThreshold
	}
	return false
}

// ChannelIDs 按顺序返回去重后的渠道ID
func (p Policy) ChannelIDs() []uint32 {
	seen := make(map[uint32]struct{}, len(p.Settings.Channels))
	ids := make([]uint32, 0, len(p.Settings.Channels))
	for _, id := range p.Settings.Channels {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// CrossedThresholds 返回 prev 未超过而 cur 超过阈值的事件，
// 没有上一次样本时视为低于所有阈值
func CrossedThresholds(prev *MetricSample, cur MetricSample, p Policy) []EventKind {
	var before MetricSample
	if prev != nil {
		before = *prev
	}
	s := p.Settings

	var kinds []EventKind
	if p.Allows(EventCPUThreshold) && rising(before.CPU, cur.CPU, s.CPUThreshold) {
		kinds = append(kinds, EventCPUThreshold)
	}
	if p.Allows(EventMemoryThreshold) && rising(before.Memory, cur.Memory, s.MemoryThreshold) {
		kinds = append(kinds, EventMemoryThreshold)
	}
	if p.Allows(EventDiskThreshold) && rising(before.Disk, cur.Disk, s.DiskThreshold) {
		kinds = append(kinds, EventDiskThreshold)
	}
	return kinds
}

func rising(prev, cur, threshold float64) bool {
	return prev <= threshold && cur > threshold
}

// Store 解析器和分发器需要的持久化接口
type Store interface {
	// GetNotificationSettings 不存在时返回 nil, nil
	GetNotificationSettings(ctx context.Context, userID uint32, targetType string, targetID uint32) (*models.NotificationSettings, error)
	GetChannel(ctx context.Context, id uint32) (*models.NotificationChannel, error)
	GetTemplate(ctx context.Context, id uint32) (*models.NotificationTemplate, error)
	// FindTemplate 优先返回用户该类型的默认模板，没有时返回 nil, nil
	FindTemplate(ctx context.Context, ownerID uint32, templateType string) (*models.NotificationTemplate, error)
	AppendNotificationHistory(ctx context.Context, h *models.NotificationHistory) error
}

// Decision 事件的解析结果
type Decision struct {
	Policy   Policy
	Channels []uint32
	Template models.NotificationTemplate
}

// Resolver 为事件加载通知设置和模板
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Policy 加载目标的全局和专属设置并解析
func (r *Resolver) Policy(ctx context.Context, target string, targetID, ownerID uint32) (Policy, error) {
	global, err := r.store.GetNotificationSettings(ctx, ownerID, globalTargetType(target), 0)
	if err != nil {
		return Policy{}, fmt.Errorf("load global settings: %w", err)
	}
	specific, err := r.store.GetNotificationSettings(ctx, ownerID, target, targetID)
	if err != nil {
		return Policy{}, fmt.Errorf("load %s settings: %w", target, err)
	}
	return Resolve(global, specific), nil
}

// Decide 解析 ev 的通知策略，返回 nil 表示不发送
func (r *Resolver) Decide(ctx context.Context, ev Event) (*Decision, error) {
	policy, err := r.Policy(ctx, ev.Target, ev.TargetID, ev.OwnerID)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(ev.Kind) {
		return nil, nil
	}
	channels := policy.ChannelIDs()
	if len(channels) == 0 {
		return nil, nil
	}

	tpl, err := r.template(ctx, policy, ev)
	if err != nil {
		return nil, err
	}
	return &Decision{Policy: policy, Channels: channels, Template: tpl}, nil
}

func (r *Resolver) template(ctx context.Context, policy Policy, ev Event) (models.NotificationTemplate, error) {
	if id := policy.Settings.TemplateID; id != nil {
		tpl, err := r.store.GetTemplate(ctx, *id)
		if err == nil && tpl != nil && tpl.Type == ev.Target {
			return *tpl, nil
		}
	}
	tpl, err := r.store.FindTemplate(ctx, ev.OwnerID, ev.Target)
	if err != nil {
		return models.NotificationTemplate{}, fmt.Errorf("find template: %w", err)
	}
	if tpl != nil {
		return *tpl, nil
	}
	return FallbackTemplate(ev.Target), nil
}

func globalTargetType(target string) string {
	if target == TargetAgent {
		return models.TargetGlobalAgent
	}
	return models.TargetGlobalMonitor
}
