package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptime/internal/alert"
	"uptime/internal/logger"
	"uptime/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrAgentNotFound = errors.New("agent not found")

// Store is the agent persistence this service needs.
type Store interface {
	// GetAgent returns nil, nil when the agent does not exist.
	GetAgent(ctx context.Context, id uint32) (*models.Agent, error)
	ListAgentsByStatus(ctx context.Context, status string) ([]models.Agent, error)
	SaveAgent(ctx context.Context, a *models.Agent) error
	// MarkAgentOffline 仅在客户端仍在线且 last_seen 早于 cutoff 时更新
	MarkAgentOffline(ctx context.Context, id uint32, cutoff time.Time) (bool, error)
}

// Notifier dispatches agent events.
type Notifier interface {
	Notify(ctx context.Context, ev alert.Event) (*alert.Report, error)
	EvaluateSample(ctx context.Context, a *models.Agent, prev *alert.MetricSample, cur alert.MetricSample, at time.Time) ([]*alert.Report, error)
}

// Report is one metric upload from an agent.
type Report struct {
	Hostname    string   `json:"hostname"`
	IPAddresses []string `json:"ip_addresses"`
	OS          string   `json:"os"`
	alert.MetricSample
}

// Service tracks agent liveness and evaluates reported metrics.
type Service struct {
	store        Store
	notifier     Notifier
	offlineAfter time.Duration
	now          func() time.Time
}

func NewService(store Store, notifier Notifier, offlineAfter time.Duration) *Service {
	if offlineAfter <= 0 {
		offlineAfter = 3 * time.Minute
	}
	return &Service{store: store, notifier: notifier, offlineAfter: offlineAfter, now: time.Now}
}

// Report stores a sample, fires recovery when an offline agent reports again
// and fires threshold events for every limit the sample crossed.
func (s *Service) Report(ctx context.Context, id uint32, r Report) (*models.Agent, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get agent %d: %w", id, err)
	}
	if a == nil {
		return nil, ErrAgentNotFound
	}

	now := s.now()
	var prev *alert.MetricSample
	if a.LastSeen != nil {
		prev = &alert.MetricSample{CPU: a.CPUUsage, Memory: a.MemoryUsage, Disk: a.DiskUsage}
	}
	previous := a.Status

	if r.Hostname != "" {
		a.Hostname = r.Hostname
	}
	if len(r.IPAddresses) > 0 {
		a.IPAddresses = r.IPAddresses
	}
	if r.OS != "" {
		a.OS = r.OS
	}
	a.CPUUsage = r.CPU
	a.MemoryUsage = r.Memory
	a.DiskUsage = r.Disk
	a.Status = models.AgentOnline
	a.LastSeen = &now
	if err := s.store.SaveAgent(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent %d: %w", id, err)
	}

	if previous == models.AgentOffline {
		vars := alert.AgentVars(a, previous, "agent reported again", now)
		s.notify(ctx, alert.NewEvent(alert.EventRecovery, alert.TargetAgent, a.ID, a.CreatedBy, vars, now))
	}
	if _, err := s.notifier.EvaluateSample(ctx, a, prev, r.MetricSample, now); err != nil {
		logger.Error("Failed to evaluate agent thresholds",
			zap.Uint32("agent_id", a.ID),
			zap.Error(err))
	}
	return a, nil
}

// Sweep marks online agents that stopped reporting as offline and returns
// how many changed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	agents, err := s.store.ListAgentsByStatus(ctx, models.AgentOnline)
	if err != nil {
		return 0, fmt.Errorf("list online agents: %w", err)
	}

	now := s.now()
	cutoff := now.Add(-s.offlineAfter)
	changed := 0
	for i := range agents {
		a := &agents[i]
		if a.LastSeen != nil && !a.LastSeen.Before(cutoff) {
			continue
		}
		// 快照之后可能有新的上报，以条件更新为准
		ok, err := s.store.MarkAgentOffline(ctx, a.ID, cutoff)
		if err != nil {
			logger.Error("Failed to mark agent offline",
				zap.Uint32("agent_id", a.ID),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		a.Status = models.AgentOffline
		changed++

		details := "no report received"
		if a.LastSeen != nil {
			details = fmt.Sprintf("last report %s ago", now.Sub(*a.LastSeen).Truncate(time.Second))
		}
		vars := alert.AgentVars(a, models.AgentOnline, details, now)
		s.notify(ctx, alert.NewEvent(alert.EventOffline, alert.TargetAgent, a.ID, a.CreatedBy, vars, now))
	}
	return changed, nil
}

// Schedule registers Sweep on c.
func (s *Service) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if n, err := s.Sweep(context.Background()); err != nil {
			logger.Error("Agent sweep failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("Agents marked offline", zap.Int("count", n))
		}
	})
}

func (s *Service) notify(ctx context.Context, ev alert.Event) {
	if _, err := s.notifier.Notify(ctx, ev); err != nil {
		logger.Error("Failed to notify agent event",
			zap.Uint32("agent_id", ev.TargetID),
			zap.String("event", string(ev.Kind)),
			zap.Error(err))
	}
}
