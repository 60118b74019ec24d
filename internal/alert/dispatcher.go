package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptime/internal/logger"
	"uptime/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Result 单个渠道的发送结果
type Result struct {
	ChannelID uint32 `json:"channel_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Report 一次分发中各渠道的结果
type Report struct {
	EventID string   `json:"event_id"`
	Results []Result `json:"results"`
}

// Sent 发送成功的渠道数
func (r *Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == models.NotificationSent {
			n++
		}
	}
	return n
}

// Dispatcher 渲染模板并并发发送到各个渠道
type Dispatcher struct {
	store    Store
	registry Registry
	timeout  time.Duration
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewDispatcher 创建分发器，perSecond <= 0 时不限速
func NewDispatcher(store Store, registry Registry, timeout time.Duration, perSecond float64) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		store:    store,
		registry: registry,
		timeout:  timeout,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		now:      time.Now,
	}
	d.SetRate(perSecond)
	return d
}

// SetRate 运行时调整发送速率
func (d *Dispatcher) SetRate(perSecond float64) {
	if perSecond <= 0 {
		d.limiter.SetLimit(rate.Inf)
		return
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	d.limiter.SetBurst(burst)
	d.limiter.SetLimit(rate.Limit(perSecond))
}

// Dispatch 将 ev 发送到 dec 中的每个渠道，单个渠道失败不影响其他渠道，
// 每次尝试都写入通知历史
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, dec Decision) *Report {
	msg := RenderMessage(dec.Template, ev)
	var templateID *uint32
	if dec.Template.ID != 0 {
		id := dec.Template.ID
		templateID = &id
	}

	results := make([]*Result, len(dec.Channels))
	var g errgroup.Group
	for i, channelID := range dec.Channels {
		g.Go(func() error {
			results[i] = d.deliver(ctx, channelID, msg, templateID)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{EventID: ev.ID}
	for _, res := range results {
		if res != nil {
			report.Results = append(report.Results, *res)
		}
	}
	return report
}

// deliver 渠道被跳过时返回 nil
func (d *Dispatcher) deliver(ctx context.Context, channelID uint32, msg Message, templateID *uint32) *Result {
	ev := msg.Event
	channel, err := d.store.GetChannel(ctx, channelID)
	if err != nil || channel == nil {
		logger.Warn("Notification channel not found, skipping",
			zap.Uint32("channel_id", channelID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return nil
	}
	if !channel.Enabled {
		logger.Info("Notification channel disabled, skipping",
			zap.Uint32("channel_id", channelID),
			zap.String("event_id", ev.ID))
		return nil
	}
	provider, err := d.registry.Lookup(channel.Type)
	if err != nil {
		logger.Warn("Unsupported notification channel, skipping",
			zap.Uint32("channel_id", channelID),
			zap.String("type", channel.Type))
		return nil
	}

	err = d.send(ctx, provider, channel, msg)
	res := &Result{ChannelID: channelID, Status: models.NotificationSent}
	if err != nil {
		res.Status = models.NotificationFailed
		res.Error = err.Error()
		logger.Warn("Notification send failed",
			zap.Uint32("channel_id", channelID),
			zap.String("type", channel.Type),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}

	entry := &models.NotificationHistory{
		EventID:    ev.ID,
		Type:       ev.Target,
		TargetID:   ev.TargetID,
		ChannelID:  channelID,
		TemplateID: templateID,
		Status:     res.Status,
		Content:    joinText(msg),
		Error:      res.Error,
		SentAt:     d.now(),
	}
	if err := d.store.AppendNotificationHistory(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("Failed to write notification history",
			zap.Uint32("channel_id", channelID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, provider Provider, channel *models.NotificationChannel, msg Message) (err error) {
	// 单个渠道 panic 只记为发送失败
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	cfg, err := DecodeConfig(channel.Type, channel.Config)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(sendCtx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	err = provider.Send(sendCtx, cfg, msg)
	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s: %w", d.timeout, err)
	}
	return err
}
