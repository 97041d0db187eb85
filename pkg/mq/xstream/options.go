package xstream

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xbus/pkg/observability/xlog"
	"github.com/omeyang/xbus/pkg/observability/xmetrics"
	"github.com/omeyang/xbus/pkg/resilience/xretry"
)

const (
	defaultReadBackoff   = 5 * time.Second
	defaultShutdownGrace = 5 * time.Second
	defaultTypeCacheSize = 4096
	defaultTypeCacheTTL  = time.Minute
	defaultPendingLimit  = 1000
)

type options struct {
	logger        xlog.Logger
	observer      xmetrics.Observer
	tracer        Tracer
	readBackoff   xretry.BackoffPolicy
	shutdownGrace time.Duration
	typeCacheTTL  time.Duration
	pendingLimit  int64

	breaker *gobreaker.Settings

	limiter   *redis_rate.Limiter
	rateLimit redis_rate.Limit

	onDeadLetter func(ctx context.Context, dl DeadLetter)
}

func defaultOptions() *options {
	return &options{
		logger:        xlog.Default(),
		observer:      xmetrics.NoopObserver{},
		tracer:        NewOTelTracer(),
		readBackoff:   xretry.NewFixedBackoff(defaultReadBackoff),
		shutdownGrace: defaultShutdownGrace,
		typeCacheTTL:  defaultTypeCacheTTL,
		pendingLimit:  defaultPendingLimit,
	}
}

// Option Bus 配置选项。
type Option func(*options)

// WithLogger 设置日志记录器，nil 被忽略。默认 stderr、info 级别。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置观测器，nil 被忽略。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithTracer 设置追踪传播，默认 [OTelTracer]。传入 NoopTracer{} 关闭传播。
func WithTracer(tracer Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithReadBackoff 轮询失败后的固定等待时间，默认 5s。
func WithReadBackoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readBackoff = xretry.NewFixedBackoff(d)
		}
	}
}

// WithReadBackoffPolicy 自定义轮询失败的退避策略。
func WithReadBackoffPolicy(policy xretry.BackoffPolicy) Option {
	return func(o *options) {
		if policy != nil {
			o.readBackoff = policy
		}
	}
}

// WithShutdownGrace Shutdown 等待消费循环退出的宽限期，默认 5s。
func WithShutdownGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownGrace = d
		}
	}
}

// WithTypeCacheTTL ListStreams 缓存 key 类型的时长，默认 1m。
func WithTypeCacheTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.typeCacheTTL = d
		}
	}
}

// WithPendingLimit PendingMessages 最多返回的条数，默认 1000。
func WithPendingLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.pendingLimit = n
		}
	}
}

// WithPublishBreaker 为追加操作加熔断器。存储持续不可用时 Publish 快速失败，
// 错误为包装 gobreaker.ErrOpenState 的 [PublishError]。
//
// settings.IsSuccessful 为空时，context 取消不计为失败。
func WithPublishBreaker(settings gobreaker.Settings) Option {
	return func(o *options) {
		if settings.IsSuccessful == nil {
			settings.IsSuccessful = func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			}
		}
		if settings.Name == "" {
			settings.Name = "xstream.publish"
		}
		o.breaker = &settings
	}
}

// WithPublishRateLimit 按流做分布式限流（GCRA），超限时返回包装
// [ErrRateLimited] 的 [PublishError]。
func WithPublishRateLimit(client redis.UniversalClient, limit redis_rate.Limit) Option {
	return func(o *options) {
		if client == nil || limit.Rate <= 0 {
			return
		}
		o.limiter = redis_rate.NewLimiter(client)
		o.rateLimit = limit
	}
}

// WithOnDeadLetter 条目写入死信流后回调，在消费 goroutine 中同步执行。
func WithOnDeadLetter(fn func(ctx context.Context, dl DeadLetter)) Option {
	return func(o *options) {
		o.onDeadLetter = fn
	}
}
