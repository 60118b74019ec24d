package alert

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"uptime/internal/logger"
	"uptime/internal/models"

	"go.uber.org/zap"
)

// Service 告警服务
type Service struct {
	store      Store
	resolver   *Resolver
	dispatcher *Dispatcher
	enabled    atomic.Bool
}

func NewService(store Store, dispatcher *Dispatcher) *Service {
	s := &Service{
		store:      store,
		resolver:   NewResolver(store),
		dispatcher: dispatcher,
	}
	s.enabled.Store(true)
	return s
}

// SetEnabled 开关全部通知
func (s *Service) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Notify 解析并分发 ev，未发送时返回 nil
func (s *Service) Notify(ctx context.Context, ev Event) (*Report, error) {
	if !s.enabled.Load() {
		return nil, nil
	}
	dec, err := s.resolver.Decide(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("resolve notification: %w", err)
	}
	if dec == nil {
		logger.Debug("Notification suppressed",
			zap.String("event", string(ev.Kind)),
			zap.String("target", ev.Target),
			zap.Uint32("target_id", ev.TargetID))
		return nil, nil
	}
	report := s.dispatcher.Dispatch(ctx, ev, *dec)
	logger.Info("Notification dispatched",
		zap.String("event_id", ev.ID),
		zap.String("event", string(ev.Kind)),
		zap.String("target", ev.Target),
		zap.Uint32("target_id", ev.TargetID),
		zap.Int("channels", len(report.Results)),
		zap.Int("sent", report.Sent()))
	return report, nil
}

// EvaluateSample 每个被超过的阈值触发一次事件，agent 需已包含新样本
func (s *Service) EvaluateSample(ctx context.Context, agent *models.Agent, prev *MetricSample, cur MetricSample, at time.Time) ([]*Report, error) {
	if !s.enabled.Load() {
		return nil, nil
	}
	policy, err := s.resolver.Policy(ctx, TargetAgent, agent.ID, agent.CreatedBy)
	if err != nil {
		return nil, err
	}

	var reports []*Report
	for _, kind := range CrossedThresholds(prev, cur, policy) {
		value, threshold := metricFor(kind, cur, policy.Settings)
		vars := AgentVars(agent, agent.Status, ThresholdDetails(kind, value, threshold), at)
		report, err := s.Notify(ctx, NewEvent(kind, TargetAgent, agent.ID, agent.CreatedBy, vars, at))
		if err != nil {
			return reports, err
		}
		if report != nil {
			reports = append(reports, report)
		}
	}
	return reports, nil
}

// TestChannel 发送测试消息，不记录历史
func (s *Service) TestChannel(ctx context.Context, channelID uint32) error {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return fmt.Errorf("channel %d not found", channelID)
	}
	provider, err := s.dispatcher.registry.Lookup(channel.Type)
	if err != nil {
		return err
	}
	now := time.Now()
	msg := Message{
		Subject: "Test notification",
		Body:    fmt.Sprintf("This is a test message from channel %q sent at %s.", channel.Name, now.Format(TimeLayout)),
		Event:   NewEvent(EventRecovery, TargetMonitor, 0, channel.CreatedBy, nil, now),
	}
	return s.dispatcher.send(ctx, provider, channel, msg)
}

func metricFor(kind EventKind, cur MetricSample, s models.NotificationSettings) (float64, float64) {
	switch kind {
	case EventCPUThreshold:
		return cur.CPU, s.CPUThreshold
	case EventMemoryThreshold:
		return cur.Memory, s.MemoryThreshold
	default:
		return cur.Disk, s.DiskThreshold
	}
}
