// Package mqcore 是 pkg/mq 下各实现共用的内核：共享错误、
// 消息头里的链路传播（Tracer、MergeTraceContext）以及带退避的消费循环 RunConsumeLoop。
package mqcore
