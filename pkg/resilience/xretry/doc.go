// Package xretry 提供退避与有限次重试。
//
// 总线在三处用到它：消费循环读取失败后的固定退避、internal/mqcore
// 通用循环的指数退避，以及 xbusctl 启动时连接 Redis 的重试。
// 重试执行委托给 [avast/retry-go/v5]。
//
//	r := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(5)),
//	    xretry.WithBackoffPolicy(xretry.NewFixedBackoff(time.Second)),
//	)
//	err := r.Do(ctx, func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	})
//
// 返回 Permanent(err) 可以让重试立即停止。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
