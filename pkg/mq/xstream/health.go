package xstream

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/xbus/pkg/observability/xmetrics"
)

// HealthStatus 健康检查结果。
type HealthStatus struct {
	Healthy bool           `json:"healthy"`
	Details map[string]any `json:"details"`
}

// Health 探测存储连通性并附带消费者与熔断器状态。
func (b *Bus) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := b.store.Ping(ctx)
	latency := time.Since(start)

	details := map[string]any{
		"latency_ms": latency.Milliseconds(),
		"consumers":  b.activeConsumers.Load(),
		"closed":     b.closed.Load(),
	}
	if state := b.BreakerState(); state != "" {
		details["breaker"] = state
	}
	if err != nil {
		details["error"] = err.Error()
	}
	return HealthStatus{Healthy: err == nil && !b.closed.Load(), Details: details}
}

// TrimStream 近似裁剪 stream 至约 maxLen 条，返回删除条数。
// 实际保留条数可能略多于 maxLen。
func (b *Bus) TrimStream(ctx context.Context, stream string, maxLen int64) (trimmed int64, err error) {
	if stream == "" {
		return 0, ErrEmptyStream
	}
	if maxLen < 0 {
		return 0, ErrInvalidMaxLen
	}

	ctx, span := xmetrics.Start(ctx, b.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "trim",
		Kind:      xmetrics.KindClient,
		Attrs:     streamAttrs(stream),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	trimmed, err = b.store.Trim(ctx, stream, maxLen)
	if err != nil {
		return 0, fmt.Errorf("xstream: trim %q: %w", stream, err)
	}
	return trimmed, nil
}

// PendingMessages 列出消费者组已投递未确认的条目，最多返回 [WithPendingLimit] 条。
func (b *Bus) PendingMessages(ctx context.Context, stream, group string) ([]PendingEntry, error) {
	if stream == "" {
		return nil, ErrEmptyStream
	}
	if group == "" {
		return nil, ErrEmptyGroup
	}
	pending, err := b.store.Pending(ctx, stream, group, "", b.opts.pendingLimit)
	if err != nil {
		return nil, fmt.Errorf("xstream: pending %s/%s: %w", stream, group, err)
	}
	return pending, nil
}

// StreamInfo 返回流的长度、组数与首尾条目。
func (b *Bus) StreamInfo(ctx context.Context, stream string) (StreamInfo, error) {
	if stream == "" {
		return StreamInfo{}, ErrEmptyStream
	}
	info, err := b.store.StreamInfo(ctx, stream)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("xstream: info %q: %w", stream, err)
	}
	return info, nil
}
