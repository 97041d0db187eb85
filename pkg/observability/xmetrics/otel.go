package xmetrics

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xbus/pkg/context/xctx"
)

// DefaultScope 默认的 instrumentation scope。
const DefaultScope = "github.com/omeyang/xbus"

// 所有组件共用的操作指标，属性为 component、operation、status。
const (
	MetricOperations = "xbus.operation.total"
	MetricLatency    = "xbus.operation.duration"
)

type otelOptions struct {
	scope string
	tp    trace.TracerProvider
	mp    metric.MeterProvider
}

// Option 配置 OTel Observer。
type Option func(*otelOptions)

func WithScope(name string) Option {
	return func(o *otelOptions) {
		if name != "" {
			o.scope = name
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *otelOptions) {
		if tp != nil {
			o.tp = tp
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *otelOptions) {
		if mp != nil {
			o.mp = mp
		}
	}
}

type otelObserver struct {
	tracer  trace.Tracer
	ops     metric.Int64Counter
	latency metric.Float64Histogram
}

// NewOTelObserver 未指定 Provider 时使用 otel 全局 Provider。
func NewOTelObserver(opts ...Option) (Observer, error) {
	o := otelOptions{scope: DefaultScope, tp: otel.GetTracerProvider(), mp: otel.GetMeterProvider()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	meter := o.mp.Meter(o.scope)
	ops, err := meter.Int64Counter(MetricOperations, metric.WithUnit("1"),
		metric.WithDescription("Operations by component, operation and status"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricOperations, err)
	}
	latency, err := meter.Float64Histogram(MetricLatency, metric.WithUnit("s"),
		metric.WithDescription("Operation latency"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, MetricLatency, err)
	}
	return &otelObserver{tracer: o.tp.Tracer(o.scope), ops: ops, latency: latency}, nil
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	component := nonEmpty(opts.Component)
	operation := nonEmpty(opts.Operation)

	ctx = adoptXctxParent(orBackground(ctx))
	ctx, span := o.tracer.Start(ctx, component+"."+operation,
		trace.WithSpanKind(opts.Kind),
		trace.WithAttributes(attribute.String("component", component), attribute.String("operation", operation)),
		trace.WithAttributes(opts.Attrs...),
	)
	return publishToXctx(ctx, span.SpanContext()), &otelSpan{
		obs:    o,
		span:   span,
		labels: []attribute.KeyValue{attribute.String("component", component), attribute.String("operation", operation)},
		begin:  time.Now(),
	}
}

type otelSpan struct {
	obs    *otelObserver
	span   trace.Span
	labels []attribute.KeyValue
	begin  time.Time
	ended  atomic.Bool
}

// End 只有第一次调用生效。
func (s *otelSpan) End(r Result) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	status := "ok"
	if r.Err != nil {
		status = "error"
		s.span.RecordError(r.Err)
		s.span.SetStatus(codes.Error, r.Err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.SetAttributes(r.Attrs...)
	s.span.End()

	set := metric.WithAttributes(append(s.labels, attribute.String("status", status))...)
	// 调用方的 ctx 可能已取消，指标仍要落下。
	ctx := context.Background()
	s.obs.ops.Add(ctx, 1, set)
	s.obs.latency.Record(ctx, time.Since(s.begin).Seconds(), set)
}

func nonEmpty(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// adoptXctxParent ctx 中只有 xctx 追踪字段（例如从消息头恢复）时，
// 把它们转成远端父 span，新跨度接在同一条链路上。
func adoptXctxParent(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	tid, err := trace.TraceIDFromHex(xctx.TraceID(ctx))
	if err != nil {
		return ctx
	}
	sid, err := trace.SpanIDFromHex(xctx.SpanID(ctx))
	if err != nil {
		return ctx
	}
	flags, _ := strconv.ParseUint(xctx.TraceFlags(ctx), 16, 8)
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.TraceFlags(flags),
	}))
}

// publishToXctx 把新跨度的标识写回 xctx，日志与出站消息头读取的是 xctx。
func publishToXctx(ctx context.Context, sc trace.SpanContext) context.Context {
	if !sc.IsValid() {
		return ctx
	}
	next, err := xctx.WithTrace(ctx, xctx.Trace{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: sc.TraceFlags().String(),
	})
	if err != nil {
		return ctx
	}
	return next
}
