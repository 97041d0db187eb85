package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// WatchCallback 每次重载后调用；err 非 nil 时配置保持旧内容。
type WatchCallback func(cfg Config, err error)

// WatchOption 配置 Watcher。
type WatchOption func(*Watcher)

// WithDebounce 合并 d 内的连续文件事件。
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher 在配置文件变化时重载 Config。
type Watcher struct {
	cfg      Config
	name     string
	fs       *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration
}

// Watch 监视 cfg 所在目录。编辑器常用 rename 覆盖文件，只盯文件本身会丢事件。
func Watch(cfg Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	if cfg == nil || cfg.Path() == "" {
		return nil, ErrNotReloadable
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: new watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path())
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), fsw.Close())
	}

	w := &Watcher{
		cfg:      cfg,
		name:     filepath.Base(cfg.Path()),
		fs:       fsw,
		callback: callback,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run 处理事件直到 ctx 取消后返回 nil，退出时关闭底层 watcher。
// 重载与回调都在 Run 所在的 goroutine 中执行。
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.notify(w.cfg.Reload())
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.notify(fmt.Errorf("xconf: watch: %w", err))
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	return filepath.Base(ev.Name) == w.name &&
		ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename)
}

func (w *Watcher) notify(err error) {
	if w.callback != nil {
		w.callback(w.cfg, err)
	}
}
