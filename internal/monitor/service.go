package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"uptime/internal/alert"
	"uptime/internal/logger"
	"uptime/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrCheckInProgress = errors.New("check already in progress")
	ErrServiceStopped  = errors.New("monitor service stopped")
)

// Store 调度器使用的监控持久化接口
type Store interface {
	ListActiveMonitors(ctx context.Context) ([]models.Monitor, error)
	// GetMonitor 监控不存在时返回 nil, nil
	GetMonitor(ctx context.Context, id uint32) (*models.Monitor, error)
	UpdateMonitorRuntimeState(ctx context.Context, id uint32, status string, checkedAt time.Time, responseTime int64) error
}

// Recorder 保存检查结果，错误不影响后续流程
type Recorder interface {
	Record(ctx context.Context, entry *models.StatusHistory) error
}

// Notifier 接收每一次状态变化
type Notifier interface {
	Notify(ctx context.Context, ev alert.Event) (*alert.Report, error)
}

// Archiver 将检查结果同步到外部存储
type Archiver interface {
	Archive(ctx context.Context, m *models.Monitor, entry *models.StatusHistory) error
}

type Options struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
}

// Outcome 一次检查产生的全部结果
type Outcome struct {
	Monitor  models.Monitor `json:"monitor"`
	Previous string         `json:"previous_status"`
	Result   *CheckResult   `json:"result"`
	Event    *alert.Event   `json:"-"`
	Report   *alert.Report  `json:"notification,omitempty"`
}

type archiveTask struct {
	monitor models.Monitor
	entry   models.StatusHistory
}

// Service 在有界工作池中调度检查，并将结果写入历史和通知
type Service struct {
	store    Store
	checker  Checker
	history  Recorder
	notifier Notifier
	archiver Archiver
	opts     Options

	mu       sync.Mutex
	inflight map[uint32]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	checkQueue chan models.Monitor
	archiveBuf chan archiveTask

	now func() time.Time
}

func NewService(store Store, checker Checker, history Recorder, notifier Notifier, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      store,
		checker:    checker,
		history:    history,
		notifier:   notifier,
		opts:       opts,
		inflight:   make(map[uint32]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		checkQueue: make(chan models.Monitor, opts.QueueSize),
		archiveBuf: make(chan archiveTask, 500),
		now:        time.Now,
	}
}

// SetArchiver 启用结果归档，需在 Start 之前调用
func (s *Service) SetArchiver(a Archiver) {
	s.archiver = a
}

// Start 启动工作池和异步归档
func (s *Service) Start() {
	logger.Info("Starting worker pool", zap.Int("workers", s.opts.Workers))
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.checkWorker()
		}()
	}
	if s.archiver != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.archiveWriter()
		}()
	}
}

// Stop cancels running work and waits for the workers to exit.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Schedule registers Tick on c with a cron spec such as "@every 60s".
func (s *Service) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := s.Tick(s.ctx); err != nil {
			logger.Error("Monitor tick failed", zap.Error(err))
		}
	})
}

// Tick 将到期且未在检查中的监控加入队列，返回入队数量。
// 入队前在持有检查锁的情况下重新读取监控，判断基于最新状态。
func (s *Service) Tick(ctx context.Context) (int, error) {
	if s.ctx.Err() != nil {
		return 0, ErrServiceStopped
	}
	monitors, err := s.store.ListActiveMonitors(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active monitors: %w", err)
	}

	now := s.now()
	queued := 0
	for _, m := range monitors {
		if !IsDue(&m, now) {
			continue
		}
		if !s.acquire(m.ID) {
			logger.Debug("Check still in flight, skipping",
				zap.Uint32("monitor_id", m.ID))
			continue
		}
		// 列表是加锁前的快照，期间可能有手动检查完成，需重新读取
		fresh, err := s.store.GetMonitor(ctx, m.ID)
		if err != nil {
			s.release(m.ID)
			logger.Error("Failed to reload monitor",
				zap.Uint32("monitor_id", m.ID),
				zap.Error(err))
			continue
		}
		if fresh == nil || !fresh.Active || !IsDue(fresh, now) {
			s.release(m.ID)
			continue
		}
		select {
		case s.checkQueue <- *fresh:
			queued++
		default:
			s.release(m.ID)
			logger.Warn("Check queue full, skipping check",
				zap.Uint32("monitor_id", m.ID),
				zap.String("monitor_name", m.Name))
		}
	}
	return queued, nil
}

// CheckNow 立即执行一次检查，忽略检查间隔
func (s *Service) CheckNow(ctx context.Context, id uint32) (*Outcome, error) {
	if !s.acquire(id) {
		return nil, ErrCheckInProgress
	}
	defer s.release(id)
	m, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get monitor %d: %w", id, err)
	}
	if m == nil {
		return nil, ErrMonitorNotFound
	}
	return s.run(ctx, *m), nil
}

// InFlight reports whether a check of id is running or queued.
func (s *Service) InFlight(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

func (s *Service) acquire(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id uint32) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Service) checkWorker() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.checkQueue:
			s.run(s.ctx, m)
			s.release(m.ID)
		}
	}
}

// run 执行一次检查，按顺序更新运行状态、历史、归档，最后发送状态变化通知
func (s *Service) run(ctx context.Context, m models.Monitor) *Outcome {
	target := NewTarget(&m, s.opts.DefaultTimeout)
	result := s.checker.Check(ctx, target)
	now := s.now()
	result.CheckedAt = now

	previous := m.Status
	if err := s.store.UpdateMonitorRuntimeState(ctx, m.ID, result.Status, now, result.ResponseTime); err != nil {
		logger.Error("Failed to update monitor state",
			zap.Uint32("monitor_id", m.ID),
			zap.Error(err))
	}
	m.Status = result.Status
	m.LastChecked = &now
	m.ResponseTime = result.ResponseTime

	entry := &models.StatusHistory{
		MonitorID:    m.ID,
		Timestamp:    now,
		Status:       result.Status,
		ResponseTime: result.ResponseTime,
		StatusCode:   result.StatusCode,
	}
	if result.Error != "" {
		msg := result.Error
		entry.Error = &msg
	}
	// 历史写入失败不影响状态更新和通知
	if err := s.history.Record(ctx, entry); err != nil {
		logger.Debug("Check history not recorded",
			zap.Uint32("monitor_id", m.ID),
			zap.Error(err))
	}
	s.queueArchive(m, entry)

	out := &Outcome{Monitor: m, Previous: previous, Result: result}
	kind, changed := DetectTransition(previous, result.Status)
	if !changed {
		return out
	}

	logger.Info("Monitor status changed",
		zap.Uint32("monitor_id", m.ID),
		zap.String("from", previous),
		zap.String("to", result.Status),
		zap.String("error", result.Error))

	vars := alert.MonitorVars(&m, previous, result.StatusCode, result.Error, now)
	ev := alert.NewEvent(kind, alert.TargetMonitor, m.ID, m.CreatedBy, vars, now)
	out.Event = &ev
	if s.notifier == nil {
		return out
	}
	report, err := s.notifier.Notify(ctx, ev)
	if err != nil {
		logger.Error("Failed to notify status change",
			zap.Uint32("monitor_id", m.ID),
			zap.String("event", string(kind)),
			zap.Error(err))
	}
	out.Report = report
	return out
}

func (s *Service) queueArchive(m models.Monitor, entry *models.StatusHistory) {
	if s.archiver == nil {
		return
	}
	select {
	case s.archiveBuf <- archiveTask{monitor: m, entry: *entry}:
	default:
		logger.Warn("Archive buffer full, dropping check",
			zap.Uint32("monitor_id", m.ID))
	}
}

func (s *Service) archiveWriter() {
	for {
		select {
		case <-s.ctx.Done():
			s.flushArchive()
			return
		case task := <-s.archiveBuf:
			s.archive(context.Background(), task)
		}
	}
}

func (s *Service) flushArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case task := <-s.archiveBuf:
			s.archive(ctx, task)
		default:
			return
		}
	}
}

func (s *Service) archive(ctx context.Context, task archiveTask) {
	if err := s.archiver.Archive(ctx, &task.monitor, &task.entry); err != nil {
		logger.Warn("Failed to archive check",
			zap.Uint32("monitor_id", task.monitor.ID),
			zap.Error(err))
	}
}
