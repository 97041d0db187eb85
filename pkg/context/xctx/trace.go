package xctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// W3C Trace Context 规定的 ID 字节长度。
const (
	// TraceIDSize 128-bit，32 个十六进制字符
	TraceIDSize = 16

	// SpanIDSize 64-bit，16 个十六进制字符
	SpanIDSize = 8
)

// 追踪字段的日志 key，同时用作消息头的字段名。
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyRequestID  = "request_id"
	KeyTraceFlags = "trace_flags"

	traceFieldCount = 4
)

const (
	keyTraceID    = contextKey("xctx:trace_id")
	keySpanID     = contextKey("xctx:span_id")
	keyRequestID  = contextKey("xctx:request_id")
	keyTraceFlags = contextKey("xctx:trace_flags")
)

// WithTraceID 将 trace ID 注入 context。
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	return withString(ctx, keyTraceID, traceID)
}

// TraceID 从 context 提取 trace ID，不存在返回空字符串。
func TraceID(ctx context.Context) string { return stringValue(ctx, keyTraceID) }

// WithSpanID 将 span ID 注入 context。
func WithSpanID(ctx context.Context, spanID string) (context.Context, error) {
	return withString(ctx, keySpanID, spanID)
}

// SpanID 从 context 提取 span ID，不存在返回空字符串。
func SpanID(ctx context.Context) string { return stringValue(ctx, keySpanID) }

// WithRequestID 将 request ID 注入 context。
func WithRequestID(ctx context.Context, requestID string) (context.Context, error) {
	return withString(ctx, keyRequestID, requestID)
}

// RequestID 从 context 提取 request ID，不存在返回空字符串。
func RequestID(ctx context.Context) string { return stringValue(ctx, keyRequestID) }

// WithTraceFlags 注入 W3C trace-flags，格式为 2 位十六进制（"01" 已采样）。
func WithTraceFlags(ctx context.Context, flags string) (context.Context, error) {
	return withString(ctx, keyTraceFlags, flags)
}

// TraceFlags 从 context 提取 trace flags，不存在返回空字符串。
func TraceFlags(ctx context.Context) string { return stringValue(ctx, keyTraceFlags) }

// RequireTraceID 获取 trace ID，缺失时返回 ErrMissingTraceID。
func RequireTraceID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if v := TraceID(ctx); v != "" {
		return v, nil
	}
	return "", ErrMissingTraceID
}

func isAllZeros(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// randomHex 生成 n 字节的非全零随机值。
// 熵源不可用时 panic，此时进程不应继续运行。
func randomHex(n int) string {
	buf := make([]byte, n)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("xctx: crypto/rand.Read failed: " + err.Error())
		}
		if !isAllZeros(buf) {
			return hex.EncodeToString(buf)
		}
	}
}

// GenerateTraceID 生成 32 位小写十六进制的 TraceID。
func GenerateTraceID() string { return randomHex(TraceIDSize) }

// GenerateSpanID 生成 16 位小写十六进制的 SpanID。
func GenerateSpanID() string { return randomHex(SpanIDSize) }

// GenerateRequestID 生成 RequestID，格式与 TraceID 一致。
func GenerateRequestID() string { return randomHex(TraceIDSize) }

// Trace 追踪信息的批量视图。
type Trace struct {
	TraceID    string
	SpanID     string
	RequestID  string
	TraceFlags string
}

// GetTrace 从 context 批量获取追踪信息，字段可能为空。
func GetTrace(ctx context.Context) Trace {
	return Trace{
		TraceID:    TraceID(ctx),
		SpanID:     SpanID(ctx),
		RequestID:  RequestID(ctx),
		TraceFlags: TraceFlags(ctx),
	}
}

// IsZero 所有字段均为空时返回 true。
func (t Trace) IsZero() bool {
	return t == Trace{}
}

// WithTrace 将 Trace 中的非空字段批量注入 context。
func WithTrace(ctx context.Context, tr Trace) (context.Context, error) {
	return applyOptionalFields(ctx, []contextFieldSetter{
		{value: tr.TraceID, set: WithTraceID},
		{value: tr.SpanID, set: WithSpanID},
		{value: tr.RequestID, set: WithRequestID},
		{value: tr.TraceFlags, set: WithTraceFlags},
	})
}

// EnsureTrace 补全缺失的 TraceID / SpanID / RequestID，已有字段原样保留。
//
// 不处理 TraceFlags：采样决策只从上游传播。
func EnsureTrace(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	var tr Trace
	if TraceID(ctx) == "" {
		tr.TraceID = GenerateTraceID()
	}
	if SpanID(ctx) == "" {
		tr.SpanID = GenerateSpanID()
	}
	if RequestID(ctx) == "" {
		tr.RequestID = GenerateRequestID()
	}
	return WithTrace(ctx, tr)
}

// ToHeaders 将追踪字段写入消息头，已存在的同名字段会被覆盖。
// headers 为 nil 时分配新 map；没有任何追踪字段时返回原 headers。
func (t Trace) ToHeaders(headers map[string]string) map[string]string {
	if t.IsZero() {
		return headers
	}
	if headers == nil {
		headers = make(map[string]string, traceFieldCount)
	}
	for k, v := range map[string]string{
		KeyTraceID:    t.TraceID,
		KeySpanID:     t.SpanID,
		KeyRequestID:  t.RequestID,
		KeyTraceFlags: t.TraceFlags,
	} {
		if v != "" {
			headers[k] = v
		}
	}
	return headers
}

// TraceFromHeaders 从消息头读取追踪字段。
func TraceFromHeaders(headers map[string]string) Trace {
	return Trace{
		TraceID:    headers[KeyTraceID],
		SpanID:     headers[KeySpanID],
		RequestID:  headers[KeyRequestID],
		TraceFlags: headers[KeyTraceFlags],
	}
}
