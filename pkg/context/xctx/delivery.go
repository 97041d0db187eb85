package xctx

import "context"

// 投递字段的日志 key。
const (
	KeyStream    = "stream"
	KeyGroup     = "group"
	KeyConsumer  = "consumer"
	KeyMessageID = "message_id"
	KeyEntryID   = "entry_id"

	deliveryFieldCount = 5
)

const (
	keyStream    = contextKey("xctx:stream")
	keyGroup     = contextKey("xctx:group")
	keyConsumer  = contextKey("xctx:consumer")
	keyMessageID = contextKey("xctx:message_id")
	keyEntryID   = contextKey("xctx:entry_id")
)

// Delivery 一次投递的定位信息：消息来自哪个流、哪个消费组的哪个消费者。
type Delivery struct {
	Stream    string
	Group     string
	Consumer  string
	MessageID string
	EntryID   string
}

// WithStream 注入流名称。
func WithStream(ctx context.Context, stream string) (context.Context, error) {
	return withString(ctx, keyStream, stream)
}

// Stream 提取流名称。
func Stream(ctx context.Context) string { return stringValue(ctx, keyStream) }

// RequireStream 获取流名称，缺失时返回 ErrMissingStream。
func RequireStream(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if v := Stream(ctx); v != "" {
		return v, nil
	}
	return "", ErrMissingStream
}

// WithGroup 注入消费组名称。
func WithGroup(ctx context.Context, group string) (context.Context, error) {
	return withString(ctx, keyGroup, group)
}

// Group 提取消费组名称。
func Group(ctx context.Context) string { return stringValue(ctx, keyGroup) }

// WithConsumer 注入消费者名称。
func WithConsumer(ctx context.Context, consumer string) (context.Context, error) {
	return withString(ctx, keyConsumer, consumer)
}

// Consumer 提取消费者名称。
func Consumer(ctx context.Context) string { return stringValue(ctx, keyConsumer) }

// WithMessageID 注入消息 ID。
func WithMessageID(ctx context.Context, id string) (context.Context, error) {
	return withString(ctx, keyMessageID, id)
}

// MessageID 提取消息 ID。
func MessageID(ctx context.Context) string { return stringValue(ctx, keyMessageID) }

// WithEntryID 注入日志条目 ID（存储层分配的位置）。
func WithEntryID(ctx context.Context, id string) (context.Context, error) {
	return withString(ctx, keyEntryID, id)
}

// EntryID 提取日志条目 ID。
func EntryID(ctx context.Context) string { return stringValue(ctx, keyEntryID) }

// WithDelivery 批量注入投递字段，空值跳过。
func WithDelivery(ctx context.Context, d Delivery) (context.Context, error) {
	return applyOptionalFields(ctx, []contextFieldSetter{
		{value: d.Stream, set: WithStream},
		{value: d.Group, set: WithGroup},
		{value: d.Consumer, set: WithConsumer},
		{value: d.MessageID, set: WithMessageID},
		{value: d.EntryID, set: WithEntryID},
	})
}

// GetDelivery 批量读取投递字段。
func GetDelivery(ctx context.Context) Delivery {
	return Delivery{
		Stream:    Stream(ctx),
		Group:     Group(ctx),
		Consumer:  Consumer(ctx),
		MessageID: MessageID(ctx),
		EntryID:   EntryID(ctx),
	}
}
