package logger

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSetLevel(t *testing.T) {
	if err := Init("info", filepath.Join(t.TempDir(), "app.log")); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"warn", "warn"},
		{"error", "error"},
		{"bogus", "info"},
	}
	for _, tt := range tests {
		SetLevel(tt.in)
		if got := Level(); got != tt.want {
			t.Fatalf("SetLevel(%q): level = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCronLogger(t *testing.T) {
	if err := Init("debug", filepath.Join(t.TempDir(), "cron.log")); err != nil {
		t.Fatalf("Init: %v", err)
	}
	l := CronLogger()
	l.Info("schedule", "entry", 1)
	l.Error(errors.New("boom"), "job failed", "entry", 1)
}
