// Package distributed 分布式协调相关的子包。
//
//   - xdlock: 基于 redsync 的 Redis 分布式锁
//   - xcron: 定时任务调度，命名任务经分布式锁保证单实例执行
package distributed
