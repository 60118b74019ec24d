package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"uptime/internal/logger"
)

// DefaultDebounce 编辑器保存时常会触发多次写事件
const DefaultDebounce = 250 * time.Millisecond

// Watcher 监听配置文件变化并在内容变更后回调
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)

	mu   sync.Mutex
	last []byte
}

// NewWatcher 创建配置监听器，onChange 只会收到通过 Validate 的配置
func NewWatcher(path string, onChange func(*Config)) *Watcher {
	data, _ := os.ReadFile(path)
	return &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		last:     data,
	}
}

// SetDebounce 设置防抖时间
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Reload 重新读取配置文件，内容未变化时返回 false
func (w *Watcher) Reload() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	w.mu.Lock()
	unchanged := bytes.Equal(data, w.last)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, err := LoadFromFile(w.path)
	if err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("config rejected: %w", err)
	}

	w.mu.Lock()
	w.last = data
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(cfg)
	}
	return true, nil
}

// Watch 阻塞监听直到 ctx 结束
// 监听所在目录而不是文件本身，兼容通过 rename 替换文件的编辑器
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info("Config watcher started", zap.String("path", w.path))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := func() {
		changed, err := w.Reload()
		if err != nil {
			logger.Warn("Config reload failed", zap.String("path", w.path), zap.Error(err))
			return
		}
		if changed {
			logger.Info("Config reloaded", zap.String("path", w.path))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}
