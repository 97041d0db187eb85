// Package mq 消息总线相关的子包。
//
//   - xstream: 基于 Redis Streams 的消息总线，支持消费者组、死信流与定时裁剪
//
// 内部包 internal/mqcore 提供追踪传播与消费循环。
package mq
