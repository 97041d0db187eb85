// Package xmetrics 是总线各组件共用的观测入口：一次操作对应一个 trace 跨度，
// 同时计入 xbus.operation.total 与 xbus.operation.duration。
//
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xstream",
//		Operation: "publish",
//		Kind:      xmetrics.KindProducer,
//	})
//	defer func() { span.End(xmetrics.Result{Err: err}) }()
//
// 进程内累计的计数器用 RegisterObservables 导出，SDK 采集时回调读取。
package xmetrics
