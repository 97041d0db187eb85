package xlog

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// core 由同一次 Build 派生出的所有 logger 共享。
type core struct {
	level     *slog.LevelVar
	addSource bool
	failures  atomic.Uint64

	onErrorMu sync.Mutex
	onError   func(error)
}

type xlogger struct {
	handler slog.Handler
	core    *core
}

var _ LoggerWithLevel = (*xlogger)(nil)

func newLogger(h slog.Handler, c *core) *xlogger {
	return &xlogger{handler: h, core: c}
}

// emit 的调用深度固定为 emit → Debug/Info/... → 调用方。
//
//go:noinline
func (l *xlogger) emit(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr, extra ...slog.Attr) {
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pc uintptr
	if l.core.addSource {
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}
	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	r.AddAttrs(extra...)
	if err := l.handler.Handle(ctx, r); err != nil {
		l.core.fail(err)
	}
}

// fail 计数写入失败并回调 onError。回调期间的再次失败只计数，回调 panic 被吞掉。
func (c *core) fail(err error) {
	c.failures.Add(1)
	if c.onError == nil || !c.onErrorMu.TryLock() {
		return
	}
	defer c.onErrorMu.Unlock()
	defer func() {
		if recover() != nil {
			c.failures.Add(1)
		}
	}()
	c.onError(err)
}

func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelDebug, msg, attrs)
}

func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelInfo, msg, attrs)
}

func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelWarn, msg, attrs)
}

func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelError, msg, attrs)
}

//go:noinline
func (l *xlogger) Stack(ctx context.Context, msg string, attrs ...slog.Attr) {
	if !l.handler.Enabled(ctx, slog.LevelError) {
		return
	}
	l.emit(ctx, slog.LevelError, msg, attrs, slog.String(KeyStack, string(debug.Stack())))
}

func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return newLogger(l.handler.WithAttrs(attrs), l.core)
}

func (l *xlogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	return newLogger(l.handler.WithGroup(name), l.core)
}

func (l *xlogger) SetLevel(level Level) { l.core.level.Set(slog.Level(level)) }

func (l *xlogger) GetLevel() Level { return Level(l.core.level.Level()) }

func (l *xlogger) Enabled(ctx context.Context, level Level) bool {
	return l.handler.Enabled(ctx, slog.Level(level))
}
