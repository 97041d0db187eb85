package xstream

import (
	"context"

	"github.com/omeyang/xbus/internal/mqcore"
	"github.com/omeyang/xbus/pkg/context/xctx"
)

// Tracer 在消息头中注入与提取追踪信息。
type Tracer = mqcore.Tracer

// NoopTracer 不做追踪。
type NoopTracer = mqcore.NoopTracer

// OTelTracer 基于 OpenTelemetry propagator 的 Tracer。
type OTelTracer = mqcore.OTelTracer

// OTelTracerOption OTelTracer 配置选项。
type OTelTracerOption = mqcore.OTelTracerOption

// NewOTelTracer 创建 OTelTracer。
var NewOTelTracer = mqcore.NewOTelTracer

// WithOTelPropagator 自定义 Propagator。
var WithOTelPropagator = mqcore.WithOTelPropagator

// Delivery 一次投递的上下文信息。
type Delivery = xctx.Delivery

// DeliveryFromContext 读取 handler ctx 中的投递信息，不在消费路径上时 ok 为 false。
func DeliveryFromContext(ctx context.Context) (d Delivery, ok bool) {
	d = xctx.GetDelivery(ctx)
	return d, d.Stream != ""
}

// Handler 消息处理函数。返回 error 或 panic 时消息进入死信流。
type Handler func(ctx context.Context, msg *Message) error

// StartPosition 消费者组的起始位置。
type StartPosition string

const (
	// StartFromBeginning 从流的第一条开始。
	StartFromBeginning StartPosition = "0"
	// StartNewOnly 只消费建组之后追加的条目。
	StartNewOnly StartPosition = "$"
)
