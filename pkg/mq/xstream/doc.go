// Package xstream 基于 Redis Streams 的消息总线。
//
// 提供至少一次（at-least-once）投递：生产者把消息信封追加到命名流，
// 消费者组各自独立地读取全部条目（组间广播），同组内的消费者竞争消费。
//
// # 投递与确认
//
// 每个 (stream, group, consumer) 三元组由一个 goroutine 驱动的显式循环消费：
//
//   - 先读取本消费者的待确认积压（ID "0"），再读取新条目（ID ">"）
//   - 处理成功后 XACK；处理失败（包括 handler panic 与解码失败）时
//     写入 {stream}:dead-letter 后再 XACK
//   - 死信写入失败时原条目保持未确认，下次轮询从积压中重新投递
//   - 读失败按固定退避重试，NOGROUP 时自动重建消费者组
//
// 同一批内按条目 ID 递增顺序处理，不同消费者之间无顺序保证。
// handler 必须能容忍重复投递。
//
// # 生命周期
//
// Subscribe 立即返回，Unsubscribe 与 Shutdown 是协作式的：
// 已读取的批次总会处理完，不会强行中断卡住的 handler。
// Shutdown 幂等，进程退出由外部（如 xrun）负责。
//
//	bus, err := xstream.New(client, xstream.WithLogger(logger))
//	err = bus.Subscribe(ctx, "orders", xstream.SubscribeOptions{Group: "billing"},
//	    func(ctx context.Context, msg *xstream.Message) error {
//	        d, _ := xstream.DeliveryFromContext(ctx)
//	        return handle(d.EntryID, msg)
//	    })
//	id, err := bus.Publish(ctx, "orders", &xstream.Message{Type: "order.created", Source: "svc-a"})
//	defer bus.Shutdown(context.Background())
package xstream
