package mqcore

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xbus/pkg/context/xctx"
)

// Tracer 负责消息头里的链路字段。
type Tracer interface {
	// Inject headers 为 nil 时不写。
	Inject(ctx context.Context, headers map[string]string)
	// Extract 返回只携带链路字段的新 context。
	Extract(headers map[string]string) context.Context
}

// NoopTracer 不读不写。
type NoopTracer struct{}

func (NoopTracer) Inject(context.Context, map[string]string) {}

func (NoopTracer) Extract(map[string]string) context.Context { return context.Background() }

// OTelTracerOption 配置 OTelTracer。
type OTelTracerOption func(*OTelTracer)

// WithOTelPropagator 替换默认的 propagator，nil 被忽略。
func WithOTelPropagator(p propagation.TextMapPropagator) OTelTracerOption {
	return func(t *OTelTracer) {
		if p != nil {
			t.propagator = p
		}
	}
}

// OTelTracer 用 OTel propagator 读写 traceparent、tracestate 与 baggage，
// request_id 另以同名头传递。
type OTelTracer struct {
	propagator propagation.TextMapPropagator
}

func NewOTelTracer(opts ...OTelTracerOption) OTelTracer {
	t := OTelTracer{propagator: propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	)}
	for _, opt := range opts {
		if opt != nil {
			opt(&t)
		}
	}
	return t
}

func (t OTelTracer) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	carrier := propagation.MapCarrier(headers)
	t.propagator.Inject(withSpanFromXctx(ctx), carrier)
	if id := xctx.RequestID(ctx); id != "" {
		carrier.Set(xctx.KeyRequestID, id)
	}
}

func (t OTelTracer) Extract(headers map[string]string) context.Context {
	if headers == nil {
		return context.Background()
	}
	ctx := t.propagator.Extract(context.Background(), propagation.MapCarrier(headers))
	tr := xctx.Trace{RequestID: headers[xctx.KeyRequestID]}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tr.TraceID = sc.TraceID().String()
		tr.SpanID = sc.SpanID().String()
		tr.TraceFlags = sc.TraceFlags().String()
	}
	if out, err := xctx.WithTrace(ctx, tr); err == nil {
		return out
	}
	return ctx
}

// withSpanFromXctx 链路只记在 xctx 中时补一个远端 SpanContext 供 propagator 读取。
// 调用方显式带了链路字段，按已采样处理。
func withSpanFromXctx(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	var cfg trace.SpanContextConfig
	var err error
	if cfg.TraceID, err = trace.TraceIDFromHex(xctx.TraceID(ctx)); err != nil {
		return ctx
	}
	if cfg.SpanID, err = trace.SpanIDFromHex(xctx.SpanID(ctx)); err != nil {
		return ctx
	}
	cfg.TraceFlags = trace.FlagsSampled
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(cfg))
}

// MergeTraceContext 把 extracted 的链路字段覆盖到 base 上，base 的其他值保留。
// xctx 字段供日志与再次发布使用，SpanContext 让处理器内新建的跨度接在生产者之下。
func MergeTraceContext(base, extracted context.Context) context.Context {
	if base == nil {
		base = context.Background()
	}
	if extracted == nil {
		return base
	}
	if merged, err := xctx.WithTrace(base, xctx.GetTrace(extracted)); err == nil {
		base = merged
	}
	if sc := trace.SpanContextFromContext(extracted); sc.IsValid() {
		base = trace.ContextWithRemoteSpanContext(base, sc)
	}
	return base
}

var (
	_ Tracer = NoopTracer{}
	_ Tracer = OTelTracer{}
)
