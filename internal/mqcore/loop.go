package mqcore

import (
	"context"
	"time"

	"github.com/omeyang/xbus/pkg/resilience/xretry"
)

// ConsumeFunc 一次消费迭代。返回 error 触发退避，返回 nil 重置退避。
type ConsumeFunc func(ctx context.Context) error

// ConsumeLoopOptions 消费循环配置。
type ConsumeLoopOptions struct {
	// Backoff 默认 xretry.NewExponentialBackoff()。
	Backoff xretry.BackoffPolicy

	// OnError 每次迭代失败时调用，attempt 为连续失败次数（从 1 开始）。
	OnError func(err error, attempt int, delay time.Duration)
}

// ConsumeLoopOption 配置函数。
type ConsumeLoopOption func(*ConsumeLoopOptions)

// WithBackoff 设置退避策略，nil 被忽略。
func WithBackoff(backoff xretry.BackoffPolicy) ConsumeLoopOption {
	return func(o *ConsumeLoopOptions) {
		if backoff != nil {
			o.Backoff = backoff
		}
	}
}

// WithOnError 设置错误回调。
func WithOnError(onError func(err error, attempt int, delay time.Duration)) ConsumeLoopOption {
	return func(o *ConsumeLoopOptions) {
		o.OnError = onError
	}
}

// DefaultBackoff 100ms 起步、30s 封顶的指数退避。
func DefaultBackoff() xretry.BackoffPolicy {
	return xretry.NewExponentialBackoff()
}

// RunConsumeLoop 反复调用 consume 直到 ctx 取消，返回 ctx.Err()。
//
// 每次迭代之间不会递归，栈深度恒定。consume 失败后等待 Backoff.NextDelay，
// 等待期间 ctx 取消立即返回；成功后连续失败计数清零，
// ResettableBackoff 同时被 Reset。
func RunConsumeLoop(ctx context.Context, consume ConsumeFunc, opts ...ConsumeLoopOption) error {
	if consume == nil {
		return ErrNilHandler
	}
	options := &ConsumeLoopOptions{Backoff: DefaultBackoff()}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := consume(ctx)
		if err == nil {
			if attempt > 0 {
				if rb, ok := options.Backoff.(xretry.ResettableBackoff); ok {
					rb.Reset()
				}
			}
			attempt = 0
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := options.Backoff.NextDelay(attempt)
		if options.OnError != nil {
			options.OnError(err, attempt, delay)
		}
		if delay <= 0 {
			continue
		}

		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
