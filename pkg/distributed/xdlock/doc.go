// Package xdlock 是基于 redsync 的 Redis 分布式锁，总线用它保证同一时刻只有一个实例在做保留裁剪。
//
//	f, err := xdlock.NewRedisFactory(client)
//	lock, err := f.TryLock(ctx, "retention", xdlock.WithExpiry(time.Minute))
//	if lock == nil {
//		return nil // 其他实例持有
//	}
//	defer lock.Unlock(ctx)
package xdlock
