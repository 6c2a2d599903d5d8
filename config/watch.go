package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化。运行中的引擎不会重新读取配置，
// 回调只用于提示"需要重启"以及提前暴露新文件的校验错误。
type Watcher struct {
	path     string
	cooldown time.Duration
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	lastFire time.Time
}

// NewWatcher 监听 path 所在目录（编辑器常以 rename 方式保存，直接监听文件会丢事件）。
func NewWatcher(path string, cooldown time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}
	if cooldown <= 0 {
		cooldown = time.Second
	}
	return &Watcher{path: abs, cooldown: cooldown, fsw: fsw}, nil
}

// Run 阻塞直到 ctx 取消。onChange 收到重新解析后的配置与校验错误。
func (w *Watcher) Run(ctx context.Context, onChange func(AppConfig, error)) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if !w.allow(time.Now()) {
				continue
			}
			cfg, err := Load(w.path)
			if onChange != nil {
				onChange(cfg, err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if onChange != nil {
				onChange(AppConfig{}, fmt.Errorf("watch config: %w", err))
			}
		}
	}
}

func (w *Watcher) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.lastFire) < w.cooldown {
		return false
	}
	w.lastFire = now
	return true
}
