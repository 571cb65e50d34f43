package generation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"campaign-forge-api/pkg/logger"
)

const defaultReloadDebounce = 300 * time.Millisecond

// TemplateWatcher 监听模板目录变化并触发 Reload（去抖）。
// Reload 失败时保留旧模板并记录日志。
type TemplateWatcher struct {
	registry *TemplateRegistry
	watcher  *fsnotify.Watcher
	debounce time.Duration

	onReload func(error)

	stopOnce sync.Once
	done     chan struct{}
}

// NewTemplateWatcher 为 registry 的目录创建监听器
func NewTemplateWatcher(registry *TemplateRegistry, debounce time.Duration) (*TemplateWatcher, error) {
	if registry == nil || strings.TrimSpace(registry.Dir()) == "" {
		return nil, fmt.Errorf("template registry has no directory to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create template watcher: %w", err)
	}
	if err := w.Add(registry.Dir()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch template dir %s: %w", registry.Dir(), err)
	}
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	return &TemplateWatcher{
		registry: registry,
		watcher:  w,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// OnReload 注册每次重载后的回调（测试与指标使用）
func (w *TemplateWatcher) OnReload(fn func(error)) {
	w.onReload = fn
}

// Run 阻塞运行，直到 ctx 取消或 Stop
func (w *TemplateWatcher) Run(ctx context.Context) {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isTemplateEvent(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "template watcher error", "error", err.Error())
		case <-timerC:
			timerC = nil
			err := w.registry.Reload()
			if err != nil {
				logger.Error(ctx, "failed to reload templates, keeping previous set", err, "dir", w.registry.Dir())
			} else {
				logger.Info(ctx, "templates reloaded", "dir", w.registry.Dir(), "count", len(w.registry.List()))
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		}
	}
}

// Stop 停止监听
func (w *TemplateWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func isTemplateEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yaml" || ext == ".yml"
}
