package xstream

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xbus/pkg/observability/xlog"
	"github.com/omeyang/xbus/pkg/observability/xmetrics"
	"github.com/omeyang/xbus/pkg/util/xlru"
)

// Bus 基于追加日志与消费者组的消息总线。
//
// 同一进程内的发布者与消费者共享一个 [Store]，Bus 本身不对存储调用加锁。
// 消费者注册表与关闭状态由互斥锁保护，计数器使用原子操作。
type Bus struct {
	store   Store
	opts    *options
	breaker *gobreaker.CircuitBreaker[string]

	defaultConsumer string

	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	messagesProcessed atomic.Int64
	messagesFailed    atomic.Int64
	activeConsumers   atomic.Int64
	streamCount       atomic.Int64

	mu        sync.Mutex
	consumers map[consumerKey]*consumer
	closed    atomic.Bool

	shutdownOnce sync.Once
	shutdownDone chan struct{}
	shutdownErr  error

	typeCache *xlru.Cache[string, string]
}

// New 基于 go-redis 客户端创建 Bus。Shutdown 不会关闭 client。
func New(client redis.UniversalClient, opts ...Option) (*Bus, error) {
	store, err := NewRedisStore(client)
	if err != nil {
		return nil, err
	}
	return NewWithStore(store, opts...)
}

// NewWithStore 基于任意 [Store] 创建 Bus。
func NewWithStore(store Store, opts ...Option) (*Bus, error) {
	if store == nil {
		return nil, ErrNilClient
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	typeCache, err := xlru.New[string, string](xlru.Config{
		Size: defaultTypeCacheSize,
		TTL:  o.typeCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("xstream: create type cache: %w", err)
	}

	b := &Bus{
		store:           store,
		opts:            o,
		defaultConsumer: newConsumerName(),
		consumers:       make(map[consumerKey]*consumer),
		shutdownDone:    make(chan struct{}),
		typeCache:       typeCache,
	}
	if o.breaker != nil {
		b.breaker = gobreaker.NewCircuitBreaker[string](*o.breaker)
	}
	return b, nil
}

// newConsumerName 生成 hostname-<uuid 前 8 位>。
func newConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "xbus"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Store 底层存储。
func (b *Bus) Store() Store { return b.store }

// Publish 把消息追加到 stream，返回存储分配的条目 ID。
//
// msg.ID 为空时生成 UUID，msg.Timestamp 为零时填入当前时间，两者会回写到 msg。
// 编码或存储失败返回 [*PublishError]，不做重试。
func (b *Bus) Publish(ctx context.Context, stream string, msg *Message) (id string, err error) {
	if stream == "" {
		return "", ErrEmptyStream
	}
	if msg == nil {
		return "", ErrNilMessage
	}
	if b.closed.Load() {
		return "", ErrClosed
	}

	ctx, span := xmetrics.Start(ctx, b.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "publish",
		Kind:      xmetrics.KindProducer,
		Attrs:     streamAttrs(stream),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	out := *msg
	out.Headers = maps.Clone(msg.Headers)
	if out.Headers == nil {
		out.Headers = make(map[string]string)
	}
	b.opts.tracer.Inject(ctx, out.Headers)

	payload, err := encodeMessage(&out)
	if err != nil {
		return "", &PublishError{Stream: stream, Err: err}
	}

	if err := b.allow(ctx, stream); err != nil {
		return "", &PublishError{Stream: stream, Err: err}
	}

	id, err = b.append(ctx, stream, map[string]any{FieldMessage: payload})
	if err != nil {
		return "", &PublishError{Stream: stream, Err: err}
	}

	if msg.TTL > 0 {
		// 条目已持久化，过期设置失败不影响发布结果
		if expErr := b.store.Expire(ctx, stream, time.Duration(msg.TTL)*time.Second); expErr != nil {
			b.opts.logger.Warn(ctx, "set stream ttl failed",
				xlog.Component(componentName),
				xlog.Err(expErr),
				slogStream(stream),
			)
		}
	}

	b.messagesSent.Add(1)
	return id, nil
}

func (b *Bus) allow(ctx context.Context, stream string) error {
	if b.opts.limiter == nil {
		return nil
	}
	res, err := b.opts.limiter.Allow(ctx, rateLimitKeyPrefix+stream, b.opts.rateLimit)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if res.Allowed == 0 {
		return ErrRateLimited
	}
	return nil
}

func (b *Bus) append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	if b.breaker == nil {
		return b.store.Append(ctx, stream, fields)
	}
	return b.breaker.Execute(func() (string, error) {
		return b.store.Append(ctx, stream, fields)
	})
}

// BreakerState 发布熔断器状态，未启用时返回空字符串。
func (b *Bus) BreakerState() string {
	if b.breaker == nil {
		return ""
	}
	return b.breaker.State().String()
}

// EnsureGroup 创建消费者组，流不存在时一并创建。组已存在视为成功。
func (b *Bus) EnsureGroup(ctx context.Context, stream, group string, start StartPosition) (err error) {
	if stream == "" {
		return ErrEmptyStream
	}
	if group == "" {
		return ErrEmptyGroup
	}
	if start == "" {
		start = StartNewOnly
	}

	ctx, span := xmetrics.Start(ctx, b.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "ensure_group",
		Kind:      xmetrics.KindClient,
		Attrs:     streamAttrs(stream),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	err = b.store.CreateGroup(ctx, stream, group, string(start))
	if err == nil || IsGroupExists(err) {
		return nil
	}
	return fmt.Errorf("xstream: create group %s/%s: %w", stream, group, err)
}

const rateLimitKeyPrefix = "xbus:publish:"
