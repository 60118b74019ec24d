package database

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"uptime/internal/alert"
	"uptime/internal/history"
	"uptime/internal/models"
	"uptime/internal/monitor"

	"gorm.io/gorm"
)

var (
	_ monitor.Store      = (*Store)(nil)
	_ history.Repository = (*Store)(nil)
	_ alert.Store        = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(Config{Driver: "sqlite", DBName: filepath.Join(t.TempDir(), "uptime.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s := NewStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateMonitorDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &models.Monitor{Name: "api", URL: "https://example.com", Active: true, CreatedBy: 1}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil || got == nil {
		t.Fatalf("GetMonitor: %v %v", got, err)
	}
	if got.Method != "GET" || got.Interval != 60 || got.Timeout != 30 || got.ExpectedStatus != 200 || got.Status != models.StatusPending {
		t.Fatalf("defaults = %+v", got)
	}

	missing, err := s.GetMonitor(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("missing monitor = %v, err = %v", missing, err)
	}
}

func TestRuntimeStateAndActiveList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	active := &models.Monitor{Name: "a", URL: "http://a", Active: true}
	paused := &models.Monitor{Name: "b", URL: "http://b", Active: false}
	for _, m := range []*models.Monitor{active, paused} {
		if err := s.CreateMonitor(ctx, m); err != nil {
			t.Fatalf("CreateMonitor: %v", err)
		}
	}

	list, err := s.ListActiveMonitors(ctx)
	if err != nil || len(list) != 1 || list[0].ID != active.ID {
		t.Fatalf("active = %+v, err = %v", list, err)
	}

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	if err := s.UpdateMonitorRuntimeState(ctx, active.ID, models.StatusDown, at, 321); err != nil {
		t.Fatalf("UpdateMonitorRuntimeState: %v", err)
	}
	got, _ := s.GetMonitor(ctx, active.ID)
	if got.Status != models.StatusDown || got.ResponseTime != 321 || got.LastChecked == nil || !got.LastChecked.Equal(at) {
		t.Fatalf("runtime state = %+v", got)
	}
}

func TestDeleteMonitorCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := &models.Monitor{Name: "a", URL: "http://a", Active: true, CreatedBy: 1}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	now := time.Now().UTC()
	if err := s.AppendHistory(ctx, &models.StatusHistory{MonitorID: m.ID, Timestamp: now, Status: models.StatusUp}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := s.UpsertDailyStat(ctx, m.ID, "2026-04-01", func(st *models.DailyStat) { st.TotalChecks++ }); err != nil {
		t.Fatalf("UpsertDailyStat: %v", err)
	}
	if err := s.UpsertNotificationSettings(ctx, &models.NotificationSettings{UserID: 1, TargetType: models.TargetMonitor, TargetID: m.ID, Enabled: true}); err != nil {
		t.Fatalf("UpsertNotificationSettings: %v", err)
	}

	if err := s.DeleteMonitor(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	for _, model := range []interface{}{&models.StatusHistory{}, &models.DailyStat{}, &models.NotificationSettings{}} {
		var n int64
		s.db.Model(model).Count(&n)
		if n != 0 {
			t.Fatalf("%T rows left: %d", model, n)
		}
	}
	if err := s.DeleteMonitor(ctx, m.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestUpsertDailyStatFolds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, status := range []string{models.StatusUp, models.StatusDown} {
		e := &models.StatusHistory{MonitorID: 3, Status: status, ResponseTime: 100}
		if err := s.UpsertDailyStat(ctx, 3, "2026-04-02", func(st *models.DailyStat) { history.Fold(st, e) }); err != nil {
			t.Fatalf("UpsertDailyStat: %v", err)
		}
	}
	stats, err := s.ListDailyStats(ctx, 3, "2026-04-01", "2026-04-30")
	if err != nil || len(stats) != 1 {
		t.Fatalf("stats = %+v, err = %v", stats, err)
	}
	st := stats[0]
	if st.TotalChecks != 2 || st.UpChecks != 1 || st.DownChecks != 1 || st.Availability != 50 || st.OutageCount != 1 {
		t.Fatalf("stat = %+v", st)
	}
}

func TestListHistorySinceOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	for _, d := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour, -time.Hour} {
		if err := s.AppendHistory(ctx, &models.StatusHistory{MonitorID: 1, Timestamp: base.Add(d), Status: models.StatusUp}); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	list, err := s.ListHistorySince(ctx, 1, base)
	if err != nil || len(list) != 3 {
		t.Fatalf("list = %d, err = %v", len(list), err)
	}
	for i := 1; i < len(list); i++ {
		if list[i].Timestamp.Before(list[i-1].Timestamp) {
			t.Fatalf("history not ascending: %v", list)
		}
	}
}

func TestUpsertNotificationSettingsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.NotificationSettings{UserID: 1, TargetType: models.TargetGlobalMonitor, TargetID: 42, Enabled: true, OnDown: true, Channels: []uint32{1}}
	if err := s.UpsertNotificationSettings(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.TargetID != 0 || first.ID == 0 {
		t.Fatalf("global row = %+v", first)
	}

	second := &models.NotificationSettings{UserID: 1, TargetType: models.TargetGlobalMonitor, Enabled: true, OnRecovery: true, Channels: []uint32{2, 3}}
	if err := s.UpsertNotificationSettings(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	list, err := s.ListNotificationSettings(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("settings rows = %d, err = %v", len(list), err)
	}
	got := list[0]
	if got.OnDown || !got.OnRecovery || !reflect.DeepEqual([]uint32(got.Channels), []uint32{2, 3}) {
		t.Fatalf("settings = %+v", got)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert changed id %d -> %d", first.ID, second.ID)
	}

	missing, err := s.GetNotificationSettings(ctx, 2, models.TargetGlobalMonitor, 0)
	if err != nil || missing != nil {
		t.Fatalf("missing settings = %+v, err = %v", missing, err)
	}
}

func TestUpsertNotificationSettingsZeroThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := &models.NotificationSettings{
		UserID: 3, TargetType: models.TargetAgent, TargetID: 7, Enabled: true,
		OnCPUThreshold: true, CPUThreshold: 0, MemoryThreshold: 0, DiskThreshold: 50,
	}
	if err := s.UpsertNotificationSettings(ctx, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetNotificationSettings(ctx, 3, models.TargetAgent, 7)
	if err != nil || got == nil {
		t.Fatalf("get = %+v, %v", got, err)
	}
	if got.CPUThreshold != 0 || got.MemoryThreshold != 0 || got.DiskThreshold != 50 {
		t.Fatalf("thresholds = %v/%v/%v, want 0/0/50", got.CPUThreshold, got.MemoryThreshold, got.DiskThreshold)
	}
}

func TestDeleteChannelPrunesSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := &models.NotificationChannel{Name: "a", Type: alert.ChannelWebhook, Config: map[string]interface{}{"url": "http://a"}, Enabled: true}
	b := &models.NotificationChannel{Name: "b", Type: alert.ChannelWebhook, Config: map[string]interface{}{"url": "http://b"}, Enabled: true}
	for _, c := range []*models.NotificationChannel{a, b} {
		if err := s.CreateChannel(ctx, c); err != nil {
			t.Fatalf("CreateChannel: %v", err)
		}
	}
	if err := s.UpsertNotificationSettings(ctx, &models.NotificationSettings{UserID: 1, TargetType: models.TargetGlobalMonitor, Channels: []uint32{a.ID, b.ID}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.AppendNotificationHistory(ctx, &models.NotificationHistory{ChannelID: a.ID, Type: "monitor", Status: models.NotificationSent, SentAt: time.Now()}); err != nil {
		t.Fatalf("AppendNotificationHistory: %v", err)
	}

	if err := s.DeleteChannel(ctx, a.ID); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	got, _ := s.GetNotificationSettings(ctx, 1, models.TargetGlobalMonitor, 0)
	if !reflect.DeepEqual([]uint32(got.Channels), []uint32{b.ID}) {
		t.Fatalf("channels = %v, want [%d]", got.Channels, b.ID)
	}
	if list, total, _ := s.ListNotificationHistory(ctx, HistoryFilter{}); total != 0 || len(list) != 0 {
		t.Fatalf("history left: %d", total)
	}
	if c, _ := s.GetChannel(ctx, a.ID); c != nil {
		t.Fatal("channel still present")
	}
}

func TestTemplates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plain := &models.NotificationTemplate{Name: "plain", Type: "monitor", Subject: "p", CreatedBy: 1}
	def1 := &models.NotificationTemplate{Name: "d1", Type: "monitor", Subject: "d1", IsDefault: true, CreatedBy: 1}
	def2 := &models.NotificationTemplate{Name: "d2", Type: "monitor", Subject: "d2", IsDefault: true, CreatedBy: 1}

	if err := s.SaveTemplate(ctx, plain); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	got, err := s.FindTemplate(ctx, 1, "monitor")
	if err != nil || got == nil || got.ID != plain.ID {
		t.Fatalf("FindTemplate = %+v, err = %v", got, err)
	}

	for _, tpl := range []*models.NotificationTemplate{def1, def2} {
		if err := s.SaveTemplate(ctx, tpl); err != nil {
			t.Fatalf("SaveTemplate: %v", err)
		}
	}
	got, _ = s.FindTemplate(ctx, 1, "monitor")
	if got.ID != def2.ID {
		t.Fatalf("default template = %d, want %d", got.ID, def2.ID)
	}
	reloaded, _ := s.GetTemplate(ctx, def1.ID)
	if reloaded.IsDefault {
		t.Fatal("older default template not cleared")
	}

	if none, err := s.FindTemplate(ctx, 1, "agent"); err != nil || none != nil {
		t.Fatalf("agent template = %+v, err = %v", none, err)
	}

	tplID := def2.ID
	if err := s.UpsertNotificationSettings(ctx, &models.NotificationSettings{UserID: 1, TargetType: models.TargetGlobalMonitor, TemplateID: &tplID}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteTemplate(ctx, def2.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	st, _ := s.GetNotificationSettings(ctx, 1, models.TargetGlobalMonitor, 0)
	if st.TemplateID != nil {
		t.Fatalf("template reference kept: %v", *st.TemplateID)
	}
}

func TestListNotificationHistoryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
	rows := []models.NotificationHistory{
		{Type: "monitor", TargetID: 1, Status: models.NotificationSent, SentAt: base},
		{Type: "monitor", TargetID: 1, Status: models.NotificationFailed, SentAt: base.Add(time.Minute)},
		{Type: "monitor", TargetID: 2, Status: models.NotificationSent, SentAt: base.Add(2 * time.Minute)},
		{Type: "agent", TargetID: 1, Status: models.NotificationSent, SentAt: base.Add(3 * time.Minute)},
	}
	for i := range rows {
		if err := s.AppendNotificationHistory(ctx, &rows[i]); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	target := uint32(1)
	list, total, err := s.ListNotificationHistory(ctx, HistoryFilter{Type: "monitor", TargetID: &target})
	if err != nil || total != 2 || len(list) != 2 {
		t.Fatalf("filtered = %d/%d, err = %v", len(list), total, err)
	}
	if !list[0].SentAt.After(list[1].SentAt) {
		t.Fatal("history not newest first")
	}

	list, total, _ = s.ListNotificationHistory(ctx, HistoryFilter{Status: models.NotificationSent, Limit: 1, Offset: 1})
	if total != 3 || len(list) != 1 || list[0].TargetID != 2 {
		t.Fatalf("page = %+v total = %d", list, total)
	}
}

func TestAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := &models.Agent{Name: "db", Hostname: "db.local", IPAddresses: []string{"10.0.0.1"}, CreatedBy: 1}
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	now := time.Now().UTC()
	a.Status = models.AgentOnline
	a.LastSeen = &now
	a.CPUUsage = 42
	if err := s.SaveAgent(ctx, a); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}
	online, err := s.ListAgentsByStatus(ctx, models.AgentOnline)
	if err != nil || len(online) != 1 || online[0].CPUUsage != 42 || online[0].IPAddresses[0] != "10.0.0.1" {
		t.Fatalf("online = %+v, err = %v", online, err)
	}

	// a report newer than the cutoff keeps the agent online
	if ok, err := s.MarkAgentOffline(ctx, a.ID, now.Add(-time.Minute)); err != nil || ok {
		t.Fatalf("MarkAgentOffline fresh = %v, %v", ok, err)
	}
	if ok, err := s.MarkAgentOffline(ctx, a.ID, now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("MarkAgentOffline stale = %v, %v", ok, err)
	}
	if ok, _ := s.MarkAgentOffline(ctx, a.ID, now.Add(time.Minute)); ok {
		t.Fatal("already offline agent updated twice")
	}
	if err := s.RenameAgent(ctx, a.ID, "db-primary"); err != nil {
		t.Fatalf("RenameAgent: %v", err)
	}
	got, _ := s.GetAgent(ctx, a.ID)
	if got.Status != models.AgentOffline || got.CPUUsage != 42 || got.Name != "db-primary" {
		t.Fatalf("agent = %+v", got)
	}

	if err := s.DeleteAgent(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if got, _ := s.GetAgent(ctx, a.ID); got != nil {
		t.Fatal("agent still present")
	}
}
