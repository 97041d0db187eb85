package xctx

import (
	"context"
	"errors"
)

// contextKey 包私有 key 类型，字符串值便于调试时识别。
type contextKey string

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrMissingTraceID trace_id 缺失
	ErrMissingTraceID = errors.New("xctx: missing trace_id")

	// ErrMissingSpanID span_id 缺失
	ErrMissingSpanID = errors.New("xctx: missing span_id")

	// ErrMissingRequestID request_id 缺失
	ErrMissingRequestID = errors.New("xctx: missing request_id")

	// ErrMissingStream stream 缺失
	ErrMissingStream = errors.New("xctx: missing stream")
)

// contextFieldSetter 描述一个可选字段的注入方式。
type contextFieldSetter struct {
	value string
	set   func(context.Context, string) (context.Context, error)
}

// applyOptionalFields 依次注入非空字段，空值跳过。
func applyOptionalFields(ctx context.Context, fields []contextFieldSetter) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	var err error
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if ctx, err = f.set(ctx, f.value); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

// stringValue 读取字符串类型的 context 值。
func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// withString 注入字符串值。
func withString(ctx context.Context, key contextKey, v string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, v), nil
}
