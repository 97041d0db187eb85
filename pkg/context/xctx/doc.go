// Package xctx 提供在 context.Context 中传递追踪与投递信息的工具。
//
// 追踪字段（trace_id / span_id / request_id / trace_flags）随消息头跨进程传播，
// 投递字段（stream / group / consumer / message_id）由消费循环在调用处理器前注入，
// 两者都会被 xlog 的 EnrichHandler 自动追加到日志记录中。
//
// 所有 WithXxx 函数在 ctx 为 nil 时返回 ErrNilContext，读取函数在缺失时返回空字符串。
package xctx
