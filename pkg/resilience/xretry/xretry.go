package xretry

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// ErrInvalidArgument Do 收到 nil 的 Retryer、context 或函数。
var ErrInvalidArgument = errors.New("xretry: invalid argument")

// BackoffPolicy 给出第 attempt 次失败（从 1 开始）后的等待时间。
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ResettableBackoff 带状态的退避，调用方在一次成功后调用 Reset。
type ResettableBackoff interface {
	BackoffPolicy
	Reset()
}

// RetryPolicy 决定失败后是否再试一次。
type RetryPolicy interface {
	// MaxAttempts 含首次；0 表示直到成功或 ctx 结束。
	MaxAttempts() int
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// FixedRetry 最多尝试 limit 次，遇到不可重试错误立即停止。
type FixedRetry struct {
	limit int
}

// NewFixedRetry limit 小于 1 时按 1 处理。
func NewFixedRetry(limit int) *FixedRetry {
	return &FixedRetry{limit: max(limit, 1)}
}

func (p *FixedRetry) MaxAttempts() int { return p.limit }

func (p *FixedRetry) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	return ctx.Err() == nil && attempt < p.limit && IsRetryable(err)
}

var _ RetryPolicy = (*FixedRetry)(nil)

// Permanent 标记 err 不再重试。
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}

// IsRetryable nil 与 Permanent 包装过的错误返回 false。
func IsRetryable(err error) bool {
	return err != nil && retry.IsRecoverable(err)
}
