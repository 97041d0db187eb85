package xrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/omeyang/xbus/pkg/observability/xlog"
)

var (
	// ErrSignal 退出由系统信号触发，用 errors.Is 判断。
	ErrSignal    = errors.New("received signal")
	ErrNilFunc   = errors.New("xrun: nil service func")
	ErrNilServer = errors.New("xrun: nil server")
)

// SignalError 携带触发退出的信号。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string { return fmt.Sprintf("received signal %v", e.Signal) }

func (e *SignalError) Unwrap() error { return ErrSignal }

// HookError 某个关闭钩子失败。
type HookError struct {
	Name string
	Err  error
}

func (e *HookError) Error() string { return fmt.Sprintf("xrun: hook %s: %v", e.Name, e.Err) }

func (e *HookError) Unwrap() error { return e.Err }

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

type config struct {
	name        string
	logger      xlog.Logger
	signals     []os.Signal
	trapSignals bool
	hooks       []hook
	hookTimeout time.Duration
}

// Option 配置 Group。
type Option func(*config)

func newConfig(opts []Option) config {
	c := config{
		name:        "xrun",
		logger:      xlog.Discard(),
		signals:     []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT},
		trapSignals: true,
		hookTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// WithName 出现在生命周期日志的 group 字段中。
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger 默认不输出日志。
func WithLogger(logger xlog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSignals 替换 Run 监听的信号，传空切片等于不监听。
func WithSignals(signals ...os.Signal) Option {
	return func(c *config) {
		c.signals = append([]os.Signal(nil), signals...)
		c.trapSignals = len(signals) > 0
	}
}

// WithShutdownHook 所有服务退出后按注册顺序执行一次，单个失败不影响后续钩子。
func WithShutdownHook(name string, fn func(ctx context.Context) error) Option {
	return func(c *config) {
		if fn != nil {
			c.hooks = append(c.hooks, hook{name: name, fn: fn})
		}
	}
}

// WithHookTimeout 全部钩子共用的时限，默认 10s。
func WithHookTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.hookTimeout = d
		}
	}
}
