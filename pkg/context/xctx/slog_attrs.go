package xctx

import (
	"context"
	"log/slog"
)

// AppendTraceAttrs 将追踪字段追加到 attrs，只追加非空字段。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if v := SpanID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeySpanID, v))
	}
	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyRequestID, v))
	}
	if v := TraceFlags(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceFlags, v))
	}
	return attrs
}

// AppendDeliveryAttrs 将投递字段追加到 attrs，只追加非空字段。
func AppendDeliveryAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := Stream(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyStream, v))
	}
	if v := Group(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyGroup, v))
	}
	if v := Consumer(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyConsumer, v))
	}
	if v := MessageID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyMessageID, v))
	}
	if v := EntryID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyEntryID, v))
	}
	return attrs
}

// LogAttrs 返回 context 中全部追踪与投递字段，都为空时返回 nil。
func LogAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]slog.Attr, 0, traceFieldCount+deliveryFieldCount)
	attrs = AppendTraceAttrs(attrs, ctx)
	attrs = AppendDeliveryAttrs(attrs, ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
