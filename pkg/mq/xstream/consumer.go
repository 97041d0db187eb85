package xstream

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/omeyang/xbus/internal/mqcore"
	"github.com/omeyang/xbus/pkg/context/xctx"
	"github.com/omeyang/xbus/pkg/observability/xlog"
	"github.com/omeyang/xbus/pkg/observability/xmetrics"
)

const (
	defaultBlock     = 2 * time.Second
	defaultBatchSize = 10

	readNew     = ">"
	readBacklog = "0"
)

// errPendingLeft 本批有条目未能确认，下一轮先重读积压。
var errPendingLeft = errors.New("xstream: entries left pending")

// SubscribeOptions 订阅参数，零值字段使用默认值。
type SubscribeOptions struct {
	// Group 消费者组，必填。
	Group string

	// Consumer 组内消费者名称，默认 hostname-<uuid 前 8 位>，同一 Bus 内固定。
	Consumer string

	// Block 单次读取最长等待时间，默认 2s。它同时决定取消订阅的最长等待。
	Block time.Duration

	// BatchSize 单次读取的最大条数，默认 10。
	BatchSize int64

	// StartID 新建组时的起始位置，默认 [StartNewOnly]。组已存在时忽略。
	StartID StartPosition
}

func (b *Bus) subscribeDefaults(o SubscribeOptions) SubscribeOptions {
	if o.Consumer == "" {
		o.Consumer = b.defaultConsumer
	}
	if o.Block <= 0 {
		o.Block = defaultBlock
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.StartID == "" {
		o.StartID = StartNewOnly
	}
	return o
}

type consumerKey struct {
	stream   string
	group    string
	consumer string
}

func (k consumerKey) String() string {
	return k.stream + "/" + k.group + "/" + k.consumer
}

// ConsumerInfo 已注册消费者的摘要。
type ConsumerInfo struct {
	Stream   string `json:"stream"`
	Group    string `json:"group"`
	Consumer string `json:"consumer"`
	Running  bool   `json:"running"`
}

type consumer struct {
	bus     *Bus
	key     consumerKey
	opts    SubscribeOptions
	handler Handler

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	// backlog 与 deadLettered 只在消费 goroutine 内读写
	backlog bool
	// deadLettered 已写入死信流但尚未确认的条目，按原条目 ID 索引
	deadLettered map[string]DeadLetter
}

// Subscribe 以 (stream, opts.Group, opts.Consumer) 注册消费者并在独立 goroutine 中轮询。
//
// 消费者组不存在时按 opts.StartID 创建。同一三元组重复订阅返回
// [*DuplicateConsumerError]，已有消费者不受影响。
// ctx 只用于创建消费者组，消费循环的生命周期由 [Bus.Unsubscribe] 与 [Bus.Shutdown] 控制。
func (b *Bus) Subscribe(ctx context.Context, stream string, opts SubscribeOptions, handler Handler) error {
	if stream == "" {
		return ErrEmptyStream
	}
	if opts.Group == "" {
		return ErrEmptyGroup
	}
	if handler == nil {
		return ErrNilHandler
	}
	if b.closed.Load() {
		return ErrClosed
	}
	opts = b.subscribeDefaults(opts)
	key := consumerKey{stream: stream, group: opts.Group, consumer: opts.Consumer}

	if b.registered(key) {
		return duplicateError(key)
	}
	if err := b.EnsureGroup(ctx, stream, opts.Group, opts.StartID); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return ErrClosed
	}
	// 建组期间可能有并发订阅抢先注册
	if _, ok := b.consumers[key]; ok {
		b.mu.Unlock()
		return duplicateError(key)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &consumer{
		bus:     b,
		key:     key,
		opts:    opts,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		backlog: true,
	}
	c.running.Store(true)
	b.consumers[key] = c
	b.activeConsumers.Add(1)
	b.mu.Unlock()

	go c.run(loopCtx)

	b.opts.logger.Debug(ctx, "consumer subscribed", xlog.Component(componentName), slogConsumer(key))
	return nil
}

func (b *Bus) registered(key consumerKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.consumers[key]
	return ok
}

func duplicateError(key consumerKey) error {
	return &DuplicateConsumerError{Stream: key.stream, Group: key.group, Consumer: key.consumer}
}

// Unsubscribe 停止并注销消费者，等待正在处理的批次完成（受 ctx 约束）。
//
// 消费循环退出前该三元组保持注册，期间重复订阅返回 [*DuplicateConsumerError]，
// [Bus.Consumers] 中显示为 Running=false。ctx 先到期时返回错误，循环退出后自动注销。
// 消费者在存储中没有积压时顺带删除它；有积压时保留，避免丢失其待确认列表。
// opts 中只有 Group 与 Consumer 参与定位，Consumer 为空时使用默认名称。
func (b *Bus) Unsubscribe(ctx context.Context, stream string, opts SubscribeOptions) error {
	opts = b.subscribeDefaults(opts)
	key := consumerKey{stream: stream, group: opts.Group, consumer: opts.Consumer}

	b.mu.Lock()
	c, ok := b.consumers[key]
	// 已在停止中的消费者视为已注销
	ok = ok && c.running.Swap(false)
	b.mu.Unlock()
	if !ok {
		return ErrConsumerNotFound
	}
	b.activeConsumers.Add(-1)
	c.stop()

	select {
	case <-c.done:
		b.release(c)
	case <-ctx.Done():
		go func() {
			<-c.done
			b.release(c)
		}()
		return fmt.Errorf("xstream: wait consumer %s: %w", key, ctx.Err())
	}

	pending, err := b.store.Pending(ctx, key.stream, key.group, key.consumer, 1)
	if err == nil && len(pending) == 0 {
		err = b.store.DeleteConsumer(ctx, key.stream, key.group, key.consumer)
	}
	if err != nil {
		b.opts.logger.Debug(ctx, "delete consumer skipped",
			xlog.Component(componentName), slogConsumer(key), xlog.Err(err))
	}
	return nil
}

// release 消费循环退出后注销 c，期间已被 Shutdown 清理或重新注册时不做处理。
func (b *Bus) release(c *consumer) {
	b.mu.Lock()
	if b.consumers[c.key] == c {
		delete(b.consumers, c.key)
	}
	b.mu.Unlock()
}

// Consumers 列出本进程注册的消费者，按流、组、名称排序。
func (b *Bus) Consumers() []ConsumerInfo {
	b.mu.Lock()
	out := make([]ConsumerInfo, 0, len(b.consumers))
	for key, c := range b.consumers {
		out = append(out, ConsumerInfo{
			Stream:   key.stream,
			Group:    key.group,
			Consumer: key.consumer,
			Running:  c.running.Load(),
		})
	}
	b.mu.Unlock()

	slices.SortFunc(out, func(x, y ConsumerInfo) int {
		return cmp.Or(
			cmp.Compare(x.Stream, y.Stream),
			cmp.Compare(x.Group, y.Group),
			cmp.Compare(x.Consumer, y.Consumer),
		)
	})
	return out
}

func (c *consumer) stop() {
	c.running.Store(false)
	c.cancel()
}

func (c *consumer) run(ctx context.Context) {
	defer close(c.done)
	_ = mqcore.RunConsumeLoop(ctx, c.poll,
		mqcore.WithBackoff(c.bus.opts.readBackoff),
		mqcore.WithOnError(c.onError),
	)
}

func (c *consumer) onError(err error, attempt int, delay time.Duration) {
	logger := c.bus.opts.logger
	ctx := context.Background()
	if errors.Is(err, errPendingLeft) {
		logger.Debug(ctx, "entries left pending, backlog will be re-read",
			xlog.Component(componentName), slogConsumer(c.key), xlog.Duration(delay))
		return
	}
	logger.Warn(ctx, "stream read failed",
		xlog.Component(componentName),
		slogConsumer(c.key),
		xlog.Err(err),
		slog.Int("attempt", attempt),
		xlog.Duration(delay),
	)
}

// poll 一次轮询：先清空本消费者的积压，再读取新条目。
func (c *consumer) poll(ctx context.Context) error {
	if !c.running.Load() {
		return nil
	}
	b := c.bus
	startID, block := readNew, c.opts.Block
	if c.backlog {
		startID, block = readBacklog, 0
	}

	entries, err := b.store.ReadGroup(ctx, c.key.stream, c.key.group, c.key.consumer, startID, c.opts.BatchSize, block)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsNoGroup(err) {
			return c.recreateGroup(ctx, err)
		}
		return &TransientReadError{Stream: c.key.stream, Group: c.key.group, Consumer: c.key.consumer, Err: err}
	}
	if len(entries) == 0 {
		c.backlog = false
		return nil
	}

	// 已读取的批次总是完整处理，不受取消影响
	batchCtx := context.WithoutCancel(ctx)
	left := false
	for _, e := range entries {
		if !c.process(batchCtx, e) {
			left = true
		}
	}
	if left {
		c.backlog = true
		return errPendingLeft
	}
	return nil
}

// recreateGroup 流过期或被删除后重建消费者组，从头读取重建后的流。
func (c *consumer) recreateGroup(ctx context.Context, cause error) error {
	b := c.bus
	if err := b.EnsureGroup(ctx, c.key.stream, c.key.group, StartFromBeginning); err != nil {
		return &TransientReadError{
			Stream:   c.key.stream,
			Group:    c.key.group,
			Consumer: c.key.consumer,
			Err:      errors.Join(cause, err),
		}
	}
	b.opts.logger.Info(ctx, "consumer group recreated",
		xlog.Component(componentName), slogConsumer(c.key))
	return nil
}

// process 处理单条目，返回 false 表示条目仍在待确认列表中。
func (c *consumer) process(ctx context.Context, e Entry) bool {
	b := c.bus
	b.messagesReceived.Add(1)

	if dl, ok := c.deadLettered[e.ID]; ok {
		return c.settle(ctx, dl)
	}

	err := c.handle(ctx, e)
	if err != nil {
		b.messagesFailed.Add(1)
		b.opts.logger.Warn(ctx, "message handling failed",
			xlog.Component(componentName), slogConsumer(c.key),
			slog.String("entry_id", e.ID), xlog.Err(err))
		dl, dlErr := b.deadLetter(ctx, c.key, e, err)
		if dlErr != nil {
			return false
		}
		return c.settle(ctx, dl)
	}

	if err := b.store.Ack(ctx, c.key.stream, c.key.group, e.ID); err != nil {
		b.opts.logger.Error(ctx, "ack failed",
			xlog.Component(componentName), slogConsumer(c.key),
			slog.String("entry_id", e.ID), xlog.Err(err))
		return false
	}
	b.messagesProcessed.Add(1)
	return true
}

// settle 确认已进入死信流的条目。确认失败时记住该条目，
// 重新投递时跳过 handler 与死信写入，保证每个条目只进入死信流一次。
func (c *consumer) settle(ctx context.Context, dl DeadLetter) bool {
	if c.bus.settleDeadLetter(ctx, c.key, dl) {
		delete(c.deadLettered, dl.OriginalEntryID)
		return true
	}
	if c.deadLettered == nil {
		c.deadLettered = make(map[string]DeadLetter)
	}
	c.deadLettered[dl.OriginalEntryID] = dl
	return false
}

func (c *consumer) handle(ctx context.Context, e Entry) (err error) {
	b := c.bus
	msg, err := decodeMessage(e.Fields)
	if err != nil {
		return &HandlerError{Stream: c.key.stream, EntryID: e.ID, Err: err}
	}

	hctx := mqcore.MergeTraceContext(ctx, b.opts.tracer.Extract(msg.Headers))
	if dctx, derr := xctx.WithDelivery(hctx, Delivery{
		Stream:    c.key.stream,
		Group:     c.key.group,
		Consumer:  c.key.consumer,
		MessageID: msg.ID,
		EntryID:   e.ID,
	}); derr == nil {
		hctx = dctx
	}

	hctx, span := xmetrics.Start(hctx, b.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "consume",
		Kind:      xmetrics.KindConsumer,
		Attrs:     consumeAttrs(c.key.stream, c.key.group, c.key.consumer),
	})
	err = c.invoke(hctx, msg)
	span.End(xmetrics.Result{Err: err})
	if err != nil {
		return &HandlerError{Stream: c.key.stream, EntryID: e.ID, Err: err}
	}
	return nil
}

func (c *consumer) invoke(ctx context.Context, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.bus.opts.logger.Stack(ctx, "handler panic",
				xlog.Component(componentName), slogConsumer(c.key), slog.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return c.handler(ctx, msg)
}
