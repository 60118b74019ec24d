package history

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"uptime/internal/models"
)

type fakeRepo struct {
	history   []models.StatusHistory
	stats     map[string]*models.DailyStat
	appendErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stats: map[string]*models.DailyStat{}}
}

func (f *fakeRepo) AppendHistory(_ context.Context, e *models.StatusHistory) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.history = append(f.history, *e)
	return nil
}

func (f *fakeRepo) UpsertDailyStat(_ context.Context, monitorID uint32, date string, fold func(*models.DailyStat)) error {
	stat, ok := f.stats[date]
	if !ok {
		stat = &models.DailyStat{MonitorID: monitorID, Date: date}
		f.stats[date] = stat
	}
	fold(stat)
	return nil
}

func (f *fakeRepo) ListHistorySince(_ context.Context, monitorID uint32, since time.Time) ([]models.StatusHistory, error) {
	var out []models.StatusHistory
	for _, h := range f.history {
		if h.MonitorID == monitorID && !h.Timestamp.Before(since) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDailyStats(_ context.Context, monitorID uint32, from, to string) ([]models.DailyStat, error) {
	var out []models.DailyStat
	for _, s := range f.stats {
		if s.MonitorID == monitorID && s.Date >= from && s.Date <= to {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func entry(status string, rt int64) *models.StatusHistory {
	return &models.StatusHistory{MonitorID: 1, Status: status, ResponseTime: rt}
}

func TestFold(t *testing.T) {
	stat := &models.DailyStat{}
	for _, e := range []*models.StatusHistory{
		entry(models.StatusUp, 100),
		entry(models.StatusDown, 300),
		entry(models.StatusDown, 50),
		entry(models.StatusUp, 150),
		entry(models.StatusDown, 200),
	} {
		Fold(stat, e)
	}

	if stat.TotalChecks != 5 || stat.UpChecks != 2 || stat.DownChecks != 3 {
		t.Fatalf("counts = %d/%d/%d", stat.TotalChecks, stat.UpChecks, stat.DownChecks)
	}
	if stat.OutageCount != 2 {
		t.Fatalf("outages = %d, want 2", stat.OutageCount)
	}
	if stat.MinResponseTime != 50 || stat.MaxResponseTime != 300 || stat.TotalResponseTime != 800 {
		t.Fatalf("response times min=%d max=%d total=%d", stat.MinResponseTime, stat.MaxResponseTime, stat.TotalResponseTime)
	}
	if stat.AvgResponseTime != 160 {
		t.Fatalf("avg = %v, want 160", stat.AvgResponseTime)
	}
	if math.Abs(stat.Availability-40) > 1e-9 {
		t.Fatalf("availability = %v, want 40", stat.Availability)
	}
	if stat.LastStatus != models.StatusDown {
		t.Fatalf("last status = %q", stat.LastStatus)
	}
}

func TestFoldFirstCheckSetsMin(t *testing.T) {
	stat := &models.DailyStat{}
	Fold(stat, entry(models.StatusUp, 900))
	if stat.MinResponseTime != 900 || stat.MaxResponseTime != 900 {
		t.Fatalf("min=%d max=%d, want 900", stat.MinResponseTime, stat.MaxResponseTime)
	}
	if stat.Availability != 100 || stat.OutageCount != 0 {
		t.Fatalf("availability=%v outages=%d", stat.Availability, stat.OutageCount)
	}
}

func TestRecordBucketsByLocation(t *testing.T) {
	repo := newFakeRepo()
	loc := time.FixedZone("UTC+8", 8*3600)
	svc := NewService(repo, loc)

	e := entry(models.StatusUp, 10)
	e.Timestamp = time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC)
	if err := svc.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, ok := repo.stats["2026-05-02"]; !ok {
		t.Fatalf("stats keys = %v, want 2026-05-02", repo.stats)
	}
	if len(repo.history) != 1 {
		t.Fatalf("history = %d", len(repo.history))
	}
}

func TestRecordAppendFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.appendErr = errors.New("disk full")
	svc := NewService(repo, nil)

	err := svc.Record(context.Background(), entry(models.StatusDown, 5))
	if !errors.Is(err, ErrHistoryWrite) {
		t.Fatalf("err = %v, want ErrHistoryWrite", err)
	}
	if len(repo.stats) != 0 {
		t.Fatal("rollup must be skipped when append fails")
	}
}

func TestRecentAndDaily(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for _, ts := range []time.Time{now.Add(-30 * time.Hour), now.Add(-2 * time.Hour), now.Add(-time.Hour)} {
		e := entry(models.StatusUp, 10)
		e.Timestamp = ts
		if err := svc.Record(context.Background(), e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := svc.Recent(context.Background(), 1)
	if err != nil || len(recent) != 2 {
		t.Fatalf("recent = %d, err = %v", len(recent), err)
	}

	daily, err := svc.Daily(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(daily) != 2 || daily[0].Date != "2026-05-09" || daily[1].Date != "2026-05-10" {
		t.Fatalf("daily = %+v", daily)
	}
	if daily[1].TotalChecks != 2 {
		t.Fatalf("today checks = %d", daily[1].TotalChecks)
	}
}
