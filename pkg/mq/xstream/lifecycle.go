package xstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omeyang/xbus/pkg/observability/xlog"
)

// Shutdown 停止所有消费者并拒绝后续的发布与订阅。
//
// 只有第一次调用会启动关闭流程，之后的调用等待同一次关闭完成并返回相同结果。
// ctx 只约束本次调用的等待，不会中断关闭流程。宽限期内未退出的消费者不会被强制终止，
// 此时返回包装 [ErrShutdownTimeout] 的错误。Shutdown 不关闭底层存储。
func (b *Bus) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		go b.shutdown()
	})
	select {
	case <-b.shutdownDone:
		return b.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed 是否已开始关闭。
func (b *Bus) Closed() bool { return b.closed.Load() }

func (b *Bus) shutdown() {
	defer close(b.shutdownDone)
	start := time.Now()

	b.mu.Lock()
	b.closed.Store(true)
	stopping := make([]*consumer, 0, len(b.consumers))
	for key, c := range b.consumers {
		stopping = append(stopping, c)
		delete(b.consumers, key)
	}
	b.mu.Unlock()

	for _, c := range stopping {
		c.stop()
	}

	stuck := waitConsumers(stopping, b.opts.shutdownGrace)
	b.activeConsumers.Store(0)
	b.typeCache.Close()

	ctx := context.Background()
	if len(stuck) > 0 {
		b.shutdownErr = fmt.Errorf("%w: %s", ErrShutdownTimeout, strings.Join(stuck, ", "))
		b.opts.logger.Warn(ctx, "shutdown grace period exceeded",
			xlog.Component(componentName),
			slog.Any("stuck", stuck),
			xlog.Duration(b.opts.shutdownGrace),
		)
		return
	}
	b.opts.logger.Info(ctx, "bus stopped",
		xlog.Component(componentName),
		xlog.Count(int64(len(stopping))),
		xlog.Duration(time.Since(start)),
	)
}

// waitConsumers 在 grace 内等待消费循环退出，返回仍未退出者。
func waitConsumers(consumers []*consumer, grace time.Duration) []string {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	var stuck []string
	expired := false
	for _, c := range consumers {
		if !expired {
			select {
			case <-c.done:
				continue
			case <-timer.C:
				expired = true
			}
		}
		select {
		case <-c.done:
		default:
			stuck = append(stuck, c.key.String())
		}
	}
	return stuck
}
