// Package xlog 基于 log/slog 的结构化日志。
//
// 所有日志方法都以 context.Context 为第一个参数，EnrichHandler 会从中提取
// xctx 的追踪字段（trace_id / span_id / request_id / trace_flags）和
// 投递字段（stream / group / consumer / message_id / entry_id）并追加到每条记录。
//
//	logger, cleanup, err := xlog.New().
//		SetFormat("json").
//		SetLevelString("info").
//		SetRotation("/var/log/xbus/xbus.log", xlog.RotationConfig{MaxSizeMB: 100}).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// Build 返回 LoggerWithLevel，支持运行时调整级别（配置热更新时使用）。
package xlog
