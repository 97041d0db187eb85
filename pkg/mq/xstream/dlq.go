package xstream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/omeyang/xbus/pkg/observability/xlog"
	"github.com/omeyang/xbus/pkg/observability/xmetrics"
)

// DeadLetterSuffix 死信流名称后缀。
const DeadLetterSuffix = ":dead-letter"

// 死信条目的字段名。
const (
	dlFieldOriginalStream  = "originalStream"
	dlFieldOriginalEntryID = "originalEntryId"
	dlFieldError           = "error"
	dlFieldTimestamp       = "timestamp"
	dlFieldConsumerGroup   = "consumerGroup"
	dlFieldConsumer        = "consumer"
	dlFieldPayload         = "payload"
)

// DeadLetterStream 返回 stream 对应的死信流名称。
func DeadLetterStream(stream string) string { return stream + DeadLetterSuffix }

// DeadLetter 死信记录。死信不会被自动重放。
type DeadLetter struct {
	// ID 死信流中的条目 ID，写入时为空。
	ID string `json:"id,omitempty"`

	OriginalStream  string    `json:"original_stream"`
	OriginalEntryID string    `json:"original_entry_id"`
	Error           string    `json:"error"`
	Timestamp       time.Time `json:"timestamp"`
	ConsumerGroup   string    `json:"consumer_group"`
	Consumer        string    `json:"consumer"`

	// Payload 原条目 message 字段的原始文本，原条目缺失该字段时为空。
	Payload string `json:"payload,omitempty"`
}

// Message 解码 Payload。
func (d DeadLetter) Message() (*Message, error) {
	if d.Payload == "" {
		return nil, ErrMissingPayload
	}
	return decodeMessage(map[string]any{FieldMessage: d.Payload})
}

func (d DeadLetter) fields() map[string]any {
	return map[string]any{
		dlFieldOriginalStream:  d.OriginalStream,
		dlFieldOriginalEntryID: d.OriginalEntryID,
		dlFieldError:           d.Error,
		dlFieldTimestamp:       d.Timestamp.UTC().Format(time.RFC3339Nano),
		dlFieldConsumerGroup:   d.ConsumerGroup,
		dlFieldConsumer:        d.Consumer,
		dlFieldPayload:         d.Payload,
	}
}

func parseDeadLetter(e Entry) DeadLetter {
	str := func(k string) string {
		switch v := e.Fields[k].(type) {
		case string:
			return v
		case []byte:
			return string(v)
		default:
			return ""
		}
	}
	dl := DeadLetter{
		ID:              e.ID,
		OriginalStream:  str(dlFieldOriginalStream),
		OriginalEntryID: str(dlFieldOriginalEntryID),
		Error:           str(dlFieldError),
		ConsumerGroup:   str(dlFieldConsumerGroup),
		Consumer:        str(dlFieldConsumer),
		Payload:         str(dlFieldPayload),
	}
	if ts, err := time.Parse(time.RFC3339Nano, str(dlFieldTimestamp)); err == nil {
		dl.Timestamp = ts
	}
	return dl
}

// deadLetter 把失败条目写入死信流，返回写入的记录。
func (b *Bus) deadLetter(ctx context.Context, key consumerKey, e Entry, cause error) (DeadLetter, error) {
	payload, _ := rawPayload(e.Fields)
	dl := DeadLetter{
		OriginalStream:  key.stream,
		OriginalEntryID: e.ID,
		Error:           cause.Error(),
		Timestamp:       time.Now(),
		ConsumerGroup:   key.group,
		Consumer:        key.consumer,
		Payload:         payload,
	}
	dlStream := DeadLetterStream(key.stream)

	spanCtx, span := xmetrics.Start(ctx, b.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "dead_letter",
		Kind:      xmetrics.KindProducer,
		Attrs:     streamAttrs(dlStream),
	})
	id, err := b.store.Append(spanCtx, dlStream, dl.fields())
	span.End(xmetrics.Result{Err: err})
	if err != nil {
		b.opts.logger.Error(ctx, "dead letter append failed, entry left pending",
			xlog.Component(componentName),
			slogConsumer(key),
			slog.String("entry_id", e.ID),
			xlog.Err(errors.Join(cause, err)),
		)
		return DeadLetter{}, err
	}
	dl.ID = id
	return dl, nil
}

// settleDeadLetter 确认已写入死信流的原条目并触发回调。
// 返回 false 表示原条目仍未确认，重新投递时只需再次确认。
func (b *Bus) settleDeadLetter(ctx context.Context, key consumerKey, dl DeadLetter) bool {
	if err := b.store.Ack(ctx, key.stream, key.group, dl.OriginalEntryID); err != nil {
		b.opts.logger.Error(ctx, "ack after dead letter failed",
			xlog.Component(componentName),
			slogConsumer(key),
			slog.String("entry_id", dl.OriginalEntryID),
			slog.String("dead_letter_id", dl.ID),
			xlog.Err(err),
		)
		return false
	}

	if b.opts.onDeadLetter != nil {
		b.opts.onDeadLetter(ctx, dl)
	}
	return true
}

// DeadLetters 从旧到新读取 stream 的死信，count <= 0 表示全部。
func (b *Bus) DeadLetters(ctx context.Context, stream string, count int64) ([]DeadLetter, error) {
	if stream == "" {
		return nil, ErrEmptyStream
	}
	entries, err := b.store.Range(ctx, DeadLetterStream(stream), "-", "+", count)
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(entries))
	for _, e := range entries {
		out = append(out, parseDeadLetter(e))
	}
	return out, nil
}
