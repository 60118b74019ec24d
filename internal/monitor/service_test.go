package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"uptime/internal/alert"
	"uptime/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	monitors map[uint32]*models.Monitor
	// afterList runs once the snapshot is taken, before it is returned.
	afterList func()
}

func newFakeStore(ms ...models.Monitor) *fakeStore {
	s := &fakeStore{monitors: map[uint32]*models.Monitor{}}
	for i := range ms {
		m := ms[i]
		s.monitors[m.ID] = &m
	}
	return s
}

func (s *fakeStore) ListActiveMonitors(context.Context) ([]models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Monitor
	for _, m := range s.monitors {
		if m.Active {
			out = append(out, *m)
		}
	}
	hook := s.afterList
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.mu.Lock()
	return out, nil
}

func (s *fakeStore) GetMonitor(_ context.Context, id uint32) (*models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) UpdateMonitorRuntimeState(_ context.Context, id uint32, status string, at time.Time, rt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.monitors[id]
	m.Status = status
	m.LastChecked = &at
	m.ResponseTime = rt
	return nil
}

func (s *fakeStore) get(id uint32) models.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.monitors[id]
}

// scriptedChecker returns queued results in order, then repeats the last one.
type scriptedChecker struct {
	mu      sync.Mutex
	results []CheckResult
	block   chan struct{}
}

func (c *scriptedChecker) Check(ctx context.Context, _ *MonitorTarget) *CheckResult {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return &r
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []models.StatusHistory
	done    chan struct{}
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, e *models.StatusHistory) error {
	r.mu.Lock()
	if r.err == nil {
		r.entries = append(r.entries, *e)
	}
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return r.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []alert.Event
}

func (n *fakeNotifier) Notify(_ context.Context, ev alert.Event) (*alert.Report, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return &alert.Report{EventID: ev.ID}, nil
}

func (n *fakeNotifier) kinds() []alert.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []alert.EventKind
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func up() CheckResult {
	return CheckResult{Status: models.StatusUp, StatusCode: 200, ResponseTime: 12}
}

func down500() CheckResult {
	return CheckResult{Status: models.StatusDown, StatusCode: 500, ResponseTime: 30,
		Error: "expected status 200, got 500", Kind: ErrorStatusMismatch}
}

func TestCheckNowTransitions(t *testing.T) {
	store := newFakeStore(models.Monitor{ID: 1, Name: "api", Status: models.StatusPending, CreatedBy: 5})
	checker := &scriptedChecker{results: []CheckResult{down500(), down500(), down500(), up(), up()}}
	notifier := &fakeNotifier{}
	svc := NewService(store, checker, &fakeRecorder{}, notifier, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.CheckNow(ctx, 1); err != nil {
			t.Fatalf("CheckNow #%d: %v", i, err)
		}
	}
	got := notifier.kinds()
	want := []alert.EventKind{alert.EventDown, alert.EventRecovery}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v, want %v", got, want)
	}
	ev := notifier.events[0]
	if ev.OwnerID != 5 || ev.TargetID != 1 || ev.Target != alert.TargetMonitor || ev.Vars["previous_status"] != models.StatusPending {
		t.Fatalf("down event = %+v", ev)
	}
	if store.get(1).Status != models.StatusUp {
		t.Fatalf("final status = %s", store.get(1).Status)
	}
}

func TestTickExampleScenario(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(models.Monitor{
		ID: 7, Name: "shop", URL: "https://shop.example.com", Active: true,
		Interval: 60, ExpectedStatus: 200, Status: models.StatusUp, LastChecked: &t0,
	})
	recorder := &fakeRecorder{done: make(chan struct{}, 1)}
	notifier := &fakeNotifier{}
	svc := NewService(store, &scriptedChecker{results: []CheckResult{down500()}}, recorder, notifier, Options{Workers: 2})
	svc.Start()
	defer svc.Stop()

	svc.now = func() time.Time { return t0.Add(30 * time.Second) }
	if n, err := svc.Tick(context.Background()); err != nil || n != 0 {
		t.Fatalf("tick at T0+30s queued %d (err %v), want 0", n, err)
	}

	now := t0.Add(61 * time.Second)
	svc.now = func() time.Time { return now }
	if n, err := svc.Tick(context.Background()); err != nil || n != 1 {
		t.Fatalf("tick at T0+61s queued %d (err %v), want 1", n, err)
	}
	waitFor(t, recorder.done)
	waitUntil(t, func() bool { return !svc.InFlight(7) })

	m := store.get(7)
	if m.Status != models.StatusDown || !m.LastChecked.Equal(now) {
		t.Fatalf("monitor = %+v", m)
	}
	entry := recorder.entries[0]
	if entry.StatusCode != 500 || entry.Status != models.StatusDown || entry.Error == nil || *entry.Error != "expected status 200, got 500" {
		t.Fatalf("history entry = %+v", entry)
	}
	if k := notifier.kinds(); len(k) != 1 || k[0] != alert.EventDown {
		t.Fatalf("events = %v", k)
	}
	if notifier.events[0].Vars["status_code"] != "500" {
		t.Fatalf("vars = %v", notifier.events[0].Vars)
	}
}

func TestInFlightGuard(t *testing.T) {
	store := newFakeStore(models.Monitor{ID: 2, Active: true, Status: models.StatusUp})
	checker := &scriptedChecker{results: []CheckResult{up()}, block: make(chan struct{})}
	recorder := &fakeRecorder{done: make(chan struct{}, 2)}
	svc := NewService(store, checker, recorder, &fakeNotifier{}, Options{Workers: 2})
	svc.Start()
	defer svc.Stop()

	if n, _ := svc.Tick(context.Background()); n != 1 {
		t.Fatalf("first tick queued %d, want 1", n)
	}
	if n, _ := svc.Tick(context.Background()); n != 0 {
		t.Fatalf("second tick queued %d while in flight, want 0", n)
	}
	if _, err := svc.CheckNow(context.Background(), 2); !errors.Is(err, ErrCheckInProgress) {
		t.Fatalf("CheckNow err = %v, want ErrCheckInProgress", err)
	}

	close(checker.block)
	waitFor(t, recorder.done)
	waitUntil(t, func() bool { return !svc.InFlight(2) })
	if _, err := svc.CheckNow(context.Background(), 2); err != nil {
		t.Fatalf("CheckNow after completion: %v", err)
	}
}

func TestTickReloadsAfterManualCheck(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(models.Monitor{
		ID: 1, Name: "api", Active: true, Interval: 60,
		Status: models.StatusUp, LastChecked: &t0,
	})
	recorder := &fakeRecorder{done: make(chan struct{}, 4)}
	notifier := &fakeNotifier{}
	svc := NewService(store, &scriptedChecker{results: []CheckResult{down500()}}, recorder, notifier, Options{Workers: 1})
	now := t0.Add(90 * time.Second)
	svc.now = func() time.Time { return now }
	svc.Start()
	defer svc.Stop()

	// a manual check completes between the list and the in-flight guard
	store.afterList = func() {
		store.afterList = nil
		if _, err := svc.CheckNow(context.Background(), 1); err != nil {
			t.Errorf("CheckNow: %v", err)
		}
	}
	n, err := svc.Tick(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("tick queued %d (err %v), want 0 after a fresh manual check", n, err)
	}
	if k := notifier.kinds(); len(k) != 1 || k[0] != alert.EventDown {
		t.Fatalf("events = %v, want one down", k)
	}

	// next interval: the queued row carries the stored down status
	now = now.Add(61 * time.Second)
	if n, _ := svc.Tick(context.Background()); n != 1 {
		t.Fatalf("tick queued %d, want 1", n)
	}
	waitFor(t, recorder.done)
	waitFor(t, recorder.done)
	waitUntil(t, func() bool { return !svc.InFlight(1) })
	if k := notifier.kinds(); len(k) != 1 {
		t.Fatalf("two consecutive downs produced events %v, want one", k)
	}
}

func TestHistoryFailureKeepsStateAndNotification(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(models.Monitor{
		ID: 8, Name: "blog", Active: true, Interval: 60,
		Status: models.StatusUp, LastChecked: &t0,
	})
	recorder := &fakeRecorder{done: make(chan struct{}, 2), err: errors.New("disk full")}
	notifier := &fakeNotifier{}
	svc := NewService(store, &scriptedChecker{results: []CheckResult{down500(), up()}}, recorder, notifier, Options{Workers: 1})
	now := t0.Add(61 * time.Second)
	svc.now = func() time.Time { return now }
	svc.Start()
	defer svc.Stop()

	if n, _ := svc.Tick(context.Background()); n != 1 {
		t.Fatalf("tick queued %d, want 1", n)
	}
	waitFor(t, recorder.done)
	waitUntil(t, func() bool { return len(notifier.kinds()) == 1 && !svc.InFlight(8) })
	m := store.get(8)
	if m.Status != models.StatusDown || !m.LastChecked.Equal(now) {
		t.Fatalf("runtime state not applied: %+v", m)
	}
	if k := notifier.kinds(); k[0] != alert.EventDown {
		t.Fatalf("events = %v", k)
	}

	now = now.Add(61 * time.Second)
	if n, _ := svc.Tick(context.Background()); n != 1 {
		t.Fatalf("tick after failed history write queued %d, want 1", n)
	}
	waitFor(t, recorder.done)
	waitUntil(t, func() bool { return len(notifier.kinds()) == 2 })
	if k := notifier.kinds(); k[1] != alert.EventRecovery {
		t.Fatalf("events = %v", k)
	}
}

func TestCheckNowNotFound(t *testing.T) {
	svc := NewService(newFakeStore(), &scriptedChecker{results: []CheckResult{up()}}, &fakeRecorder{}, nil, Options{})
	if _, err := svc.CheckNow(context.Background(), 99); !errors.Is(err, ErrMonitorNotFound) {
		t.Fatalf("err = %v, want ErrMonitorNotFound", err)
	}
}

func TestCheckNowInactiveMonitor(t *testing.T) {
	store := newFakeStore(models.Monitor{ID: 3, Active: false, Status: models.StatusPending})
	svc := NewService(store, &scriptedChecker{results: []CheckResult{up()}}, &fakeRecorder{}, nil, Options{})
	out, err := svc.CheckNow(context.Background(), 3)
	if err != nil || out.Result.Status != models.StatusUp || out.Event != nil {
		t.Fatalf("outcome = %+v, err = %v", out, err)
	}
}

type fakeArchiver struct {
	done chan uint32
}

func (a *fakeArchiver) Archive(_ context.Context, m *models.Monitor, _ *models.StatusHistory) error {
	a.done <- m.ID
	return nil
}

func TestArchiveIsAsync(t *testing.T) {
	store := newFakeStore(models.Monitor{ID: 4, Status: models.StatusUp})
	svc := NewService(store, &scriptedChecker{results: []CheckResult{up()}}, &fakeRecorder{}, nil, Options{})
	archiver := &fakeArchiver{done: make(chan uint32, 1)}
	svc.SetArchiver(archiver)
	svc.Start()
	defer svc.Stop()

	if _, err := svc.CheckNow(context.Background(), 4); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	select {
	case id := <-archiver.done:
		if id != 4 {
			t.Fatalf("archived monitor %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("check was not archived")
	}
}

func TestTickAgainstHTTPServer(t *testing.T) {
	srv := newStatusServer(t, http.StatusServiceUnavailable)
	store := newFakeStore(models.Monitor{ID: 5, URL: srv, Active: true, Timeout: 5, Status: models.StatusUp})
	recorder := &fakeRecorder{done: make(chan struct{}, 1)}
	notifier := &fakeNotifier{}
	svc := NewService(store, NewHTTPChecker(), recorder, notifier, Options{Workers: 1})
	svc.Start()
	defer svc.Stop()

	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	waitFor(t, recorder.done)
	waitUntil(t, func() bool { return len(notifier.kinds()) == 1 })
	if store.get(5).Status != models.StatusDown {
		t.Fatalf("status = %s", store.get(5).Status)
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for check")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
