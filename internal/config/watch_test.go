package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")

	var got *Config
	w := NewWatcher(path, func(c *Config) { got = c })

	changed, err := w.Reload()
	if err != nil || changed {
		t.Fatalf("unchanged reload = %v, %v", changed, err)
	}

	if err := os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err = w.Reload()
	if err != nil || !changed {
		t.Fatalf("reload = %v, %v", changed, err)
	}
	if got == nil || got.Logger.Level != "debug" {
		t.Fatalf("callback config = %+v", got)
	}
}

func TestWatcherRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")
	called := false
	w := NewWatcher(path, func(*Config) { called = true })

	if err := os.WriteFile(path, []byte("logger:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Reload(); err == nil {
		t.Fatal("expected validation error")
	}
	if called {
		t.Fatal("callback invoked for invalid config")
	}

	// 修正后应当重新生效
	if err := os.WriteFile(path, []byte("logger:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if changed, err := w.Reload(); err != nil || !changed || !called {
		t.Fatalf("reload after fix = %v, %v, called=%v", changed, err, called)
	}
}

func TestWatcherWatch(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")

	updates := make(chan *Config, 1)
	w := NewWatcher(path, func(c *Config) {
		select {
		case updates <- c:
		default:
		}
	})
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	level := "debug"
	for {
		select {
		case c := <-updates:
			if c.Logger.Level != level {
				t.Fatalf("level = %q", c.Logger.Level)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			// 监听器启动前的写入可能丢失，重复写入直到收到回调
			if err := os.WriteFile(path, []byte("logger:\n  level: "+level+"\n"), 0644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			cancel()
			t.Fatal("no reload observed")
		}
	}
}
