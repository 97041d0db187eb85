package xlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/omeyang/xbus/pkg/context/xctx"
)

// ErrNilHandler NewEnrichHandler 的 base 为 nil。
var ErrNilHandler = errors.New("xlog: base handler is nil")

// EnrichHandler 把 context 中的追踪字段与投递字段（流、组、消费者、消息 ID、条目 ID）
// 追加到每条记录，缺失的字段不输出。WithGroup 之后追加的字段落在分组内。
type EnrichHandler struct {
	base slog.Handler
}

var _ slog.Handler = (*EnrichHandler)(nil)

// NewEnrichHandler 包装 base。
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := xctx.LogAttrs(ctx); attrs != nil {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
