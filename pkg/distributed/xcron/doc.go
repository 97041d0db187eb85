// Package xcron 基于 robfig/cron/v3 的定时任务调度，支持分布式锁互斥。
//
// 多副本部署时为调度器配置 Locker，带名称的任务每个触发点只有
// 获取到锁的实例执行，其余实例记为跳过：
//
//	factory, _ := xdlock.NewRedisFactory(client)
//	s := xcron.New(xcron.WithLocker(xcron.NewXdlockLocker(factory)))
//	_, err := s.AddFunc("@every 1m", trim, xcron.WithName("retention"))
//	err = s.Run(ctx) // 阻塞直到 ctx 结束
//
// 未命名的任务不加锁。
package xcron
