package xretry

import (
	"math"
	"math/rand/v2"
	"time"
)

// FixedBackoff 每次等待同样的时长。
type FixedBackoff time.Duration

// NewFixedBackoff 负数按 0 处理。
func NewFixedBackoff(d time.Duration) FixedBackoff {
	return FixedBackoff(max(d, 0))
}

func (b FixedBackoff) NextDelay(int) time.Duration { return time.Duration(b) }

// ExponentialBackoff 第 n 次等待 Base*Factor^(n-1)，上下浮动 Jitter 比例，不超过 Cap。
type ExponentialBackoff struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	Jitter float64
}

// NewExponentialBackoff 100ms 起步，每次翻倍，30s 封顶，抖动 10%。
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Cap:    30 * time.Second,
		Factor: 2,
		Jitter: 0.1,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	limit := max(b.Cap, b.Base)

	d := float64(b.Base) * math.Pow(factor, float64(max(attempt, 1)-1))
	if j := min(max(b.Jitter, 0), 1); j > 0 {
		d += d * j * (2*rand.Float64() - 1)
	}
	// Pow 溢出后 d 可能是 +Inf 或 NaN。
	if !(d < float64(limit)) {
		return limit
	}
	return time.Duration(max(d, 0))
}

var (
	_ BackoffPolicy = FixedBackoff(0)
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
)
