package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xbus/pkg/observability/xlog"
)

// Group 一组共享生命周期的服务：任一服务出错、Cancel 或父 ctx 取消，其余服务都收到取消。
// Go 与 Cancel 可以并发调用，Wait 只调用一次。
type Group struct {
	cfg    config
	root   context.Context
	cancel context.CancelCauseFunc
	eg     *errgroup.Group
	ctx    context.Context

	hooksOnce sync.Once
	hooksErr  error
}

// NewGroup 返回的 context 即传给各服务的 context。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	root, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(root)
	return &Group{cfg: newConfig(opts), root: root, cancel: cancel, eg: eg, ctx: egCtx}, egCtx
}

// Go 启动名为 name 的服务，fn 应在 ctx 取消后尽快返回。
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		log := []slog.Attr{slog.String("group", g.cfg.name), slog.String("service", name)}
		g.cfg.logger.Debug(g.ctx, "service started", log...)

		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.cfg.logger.Warn(g.ctx, "service failed", append(log, xlog.Err(err))...)
		} else {
			g.cfg.logger.Debug(g.ctx, "service stopped", log...)
		}
		return err
	})
}

// Cancel 让所有服务退出，cause 成为 Wait 的返回值。
// 包装了 context.Canceled 的 cause 按普通取消处理。
func (g *Group) Cancel(cause error) { g.cancel(cause) }

// Wait 等全部服务退出后执行关闭钩子。
//
// 返回值：第一个非取消错误；否则是 Cancel 或信号给出的原因；父 ctx 的普通取消返回 nil。
// 钩子错误以 *HookError 形式 errors.Join 在后。
func (g *Group) Wait() error {
	err := g.eg.Wait()
	g.cancel(nil)
	g.cfg.logger.Debug(context.Background(), "all services stopped", slog.String("group", g.cfg.name))

	if err == nil || errors.Is(err, context.Canceled) {
		err = nil
		if cause := context.Cause(g.root); !errors.Is(cause, context.Canceled) {
			err = cause
		}
	}
	return errors.Join(err, g.runHooks())
}

func (g *Group) runHooks() error {
	g.hooksOnce.Do(func() {
		if len(g.cfg.hooks) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(g.root), g.cfg.hookTimeout)
		defer cancel()

		var errs []error
		for _, h := range g.cfg.hooks {
			log := []slog.Attr{slog.String("group", g.cfg.name), slog.String("hook", h.name)}
			if err := h.fn(ctx); err != nil {
				g.cfg.logger.Error(ctx, "shutdown hook failed", append(log, xlog.Err(err))...)
				errs = append(errs, &HookError{Name: h.name, Err: err})
				continue
			}
			g.cfg.logger.Debug(ctx, "shutdown hook done", log...)
		}
		g.hooksErr = errors.Join(errs...)
	})
	return g.hooksErr
}

// Service 一个具名的长期任务。
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run 在一个 Group 里运行 services，并在收到信号时以 *SignalError 结束。
func Run(ctx context.Context, opts []Option, services ...Service) error {
	g, _ := NewGroup(ctx, opts...)
	if g.cfg.trapSignals {
		g.Go("signals", g.trap)
	}
	for _, svc := range services {
		g.Go(svc.Name, svc.Run)
	}
	return g.Wait()
}

type injectedSignalsKey struct{}

func (g *Group) trap(ctx context.Context) error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, g.cfg.signals...)
	defer signal.Stop(sigc)

	// 测试经由 ctx 注入信号。
	injected, _ := ctx.Value(injectedSignalsKey{}).(<-chan os.Signal)

	var sig os.Signal
	select {
	case <-ctx.Done():
		return nil
	case sig = <-sigc:
	case sig = <-injected:
	}
	g.cfg.logger.Info(ctx, "received signal", slog.String("group", g.cfg.name), slog.String("signal", sig.String()))
	g.cancel(&SignalError{Signal: sig})
	return nil
}
