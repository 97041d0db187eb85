package xretry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Retryer 按 RetryPolicy 与 BackoffPolicy 重复执行函数，执行由 retry-go 完成。
type Retryer struct {
	policy  RetryPolicy
	backoff BackoffPolicy
	onRetry func(attempt int, err error)
}

// RetryerOption 配置 Retryer，nil 参数被忽略。
type RetryerOption func(*Retryer)

func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.policy = p
		}
	}
}

func WithBackoffPolicy(b BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithOnRetry 在每次失败且还会再试时回调，attempt 从 1 开始。
func WithOnRetry(fn func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if fn != nil {
			r.onRetry = fn
		}
	}
}

// NewRetryer 默认最多 3 次，指数退避。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{policy: NewFixedRetry(3), backoff: NewExponentialBackoff()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do 执行 fn 直到成功、策略放弃或 ctx 结束，返回最后一次的错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || ctx == nil || fn == nil {
		return ErrInvalidArgument
	}

	failures := 0
	opts := []retry.Option{
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			failures++
			return r.policy.ShouldRetry(ctx, failures, err)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return r.backoff.NextDelay(int(n))
		}),
	}
	if n := r.policy.MaxAttempts(); n > 0 {
		opts = append(opts, retry.Attempts(uint(n)))
	} else {
		opts = append(opts, retry.UntilSucceeded())
	}
	if r.onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			r.onRetry(int(n)+1, err)
		}))
	}

	return retry.New(opts...).Do(func() error { return fn(ctx) })
}
