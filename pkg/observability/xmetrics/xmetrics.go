package xmetrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNilMeter   = errors.New("xmetrics: nil meter")
	ErrInstrument = errors.New("xmetrics: create instrument")
)

// Attr 跨度与指标属性，直接使用 OTel 的 KeyValue。
type Attr = attribute.KeyValue

// String 字符串属性。
func String(key, value string) Attr { return attribute.String(key, value) }

// Kind 跨度类型。
type Kind = trace.SpanKind

const (
	KindInternal = trace.SpanKindInternal
	KindClient   = trace.SpanKindClient
	KindProducer = trace.SpanKindProducer
	KindConsumer = trace.SpanKindConsumer
)

// SpanOptions 跨度名为 Component.Operation。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result Err 非 nil 时跨度与指标都记为 error。
type Result struct {
	Err   error
	Attrs []Attr
}

type Span interface {
	End(result Result)
}

// Observer 为一次操作同时产生 trace 跨度与指标。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 什么都不记录。
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	return orBackground(ctx), noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(Result) {}

// Start 调用 observer.Start，observer 为 nil 或返回 nil 时退化为空实现。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	ctx = orBackground(ctx)
	if observer == nil {
		return ctx, noopSpan{}
	}
	spanCtx, span := observer.Start(ctx, opts)
	if spanCtx == nil {
		spanCtx = ctx
	}
	if span == nil {
		span = noopSpan{}
	}
	return spanCtx, span
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
