package xstream

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xbus/pkg/observability/xmetrics"
)

const typeStream = "stream"

// MetricsSnapshot 计数器快照，进程重启后归零。
type MetricsSnapshot struct {
	MessagesSent      int64 `json:"messages_sent"`
	MessagesReceived  int64 `json:"messages_received"`
	MessagesProcessed int64 `json:"messages_processed"`
	MessagesFailed    int64 `json:"messages_failed"`
	ActiveConsumers   int64 `json:"active_consumers"`
	StreamCount       int64 `json:"stream_count"`
}

// Metrics 返回当前计数。StreamCount 只在 [Bus.ListStreams] 时刷新。
func (b *Bus) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesSent:      b.messagesSent.Load(),
		MessagesReceived:  b.messagesReceived.Load(),
		MessagesProcessed: b.messagesProcessed.Load(),
		MessagesFailed:    b.messagesFailed.Load(),
		ActiveConsumers:   b.activeConsumers.Load(),
		StreamCount:       b.streamCount.Load(),
	}
}

// ListStreams 遍历所有 key 并筛选出流，结果排序，同时刷新 StreamCount。
//
// 开销与 key 总数成正比，是维护操作，不要放在热路径上。
// key 类型会缓存一段时间（见 [WithTypeCacheTTL]）。
func (b *Bus) ListStreams(ctx context.Context) ([]string, error) {
	keys, err := b.store.Keys(ctx, "*")
	if err != nil {
		return nil, fmt.Errorf("xstream: scan keys: %w", err)
	}

	var streams []string
	for _, key := range keys {
		typ, ok := b.typeCache.Get(key)
		if !ok {
			typ, err = b.store.TypeOf(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("xstream: type of %q: %w", key, err)
			}
			// 扫描与查询之间 key 可能已被删除
			if typ != "none" {
				b.typeCache.Set(key, typ)
			}
		}
		if typ == typeStream {
			streams = append(streams, key)
		}
	}
	slices.Sort(streams)

	b.streamCount.Store(int64(len(streams)))
	return streams, nil
}

// RegisterMetrics 把计数器导出为 OpenTelemetry observable 指标。
// 返回的 Registration 在不再需要时 Unregister。
func (b *Bus) RegisterMetrics(meter metric.Meter) (metric.Registration, error) {
	return xmetrics.RegisterObservables(meter,
		xmetrics.Observable{
			Name:        "xbus.messages.sent",
			Description: "Messages appended by Publish",
			Unit:        "{message}",
			Kind:        xmetrics.ObservableCounter,
			Value:       b.messagesSent.Load,
		},
		xmetrics.Observable{
			Name:        "xbus.messages.received",
			Description: "Entries read by consumers, including redeliveries",
			Unit:        "{message}",
			Kind:        xmetrics.ObservableCounter,
			Value:       b.messagesReceived.Load,
		},
		xmetrics.Observable{
			Name:        "xbus.messages.processed",
			Description: "Entries handled and acknowledged",
			Unit:        "{message}",
			Kind:        xmetrics.ObservableCounter,
			Value:       b.messagesProcessed.Load,
		},
		xmetrics.Observable{
			Name:        "xbus.messages.failed",
			Description: "Entries whose handling failed",
			Unit:        "{message}",
			Kind:        xmetrics.ObservableCounter,
			Value:       b.messagesFailed.Load,
		},
		xmetrics.Observable{
			Name:        "xbus.consumers.active",
			Description: "Registered consumers",
			Unit:        "{consumer}",
			Kind:        xmetrics.ObservableGauge,
			Value:       b.activeConsumers.Load,
		},
		xmetrics.Observable{
			Name:        "xbus.streams",
			Description: "Streams seen by the last ListStreams",
			Unit:        "{stream}",
			Kind:        xmetrics.ObservableGauge,
			Value:       b.streamCount.Load,
		},
	)
}
