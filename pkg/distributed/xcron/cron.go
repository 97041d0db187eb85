package xcron

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler 定时任务调度器。
type Scheduler struct {
	cron  *cron.Cron
	opts  *schedulerOptions
	stats *Stats

	// 取消正在执行的任务的 context
	jobCtx    context.Context
	jobCancel context.CancelFunc
	stopOnce  sync.Once
}

// New 创建调度器，默认 NoopLocker、本地时区、分钟级精度。
func New(opts ...SchedulerOption) *Scheduler {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(o.location), cron.WithParser(o.parser)),
		opts:      o,
		stats:     &Stats{},
		jobCtx:    ctx,
		jobCancel: cancel,
	}
}

// AddFunc 添加函数任务。
func (s *Scheduler) AddFunc(spec string, fn func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(spec, JobFunc(fn), opts...)
}

// AddJob 添加任务，spec 非法时返回错误。
func (s *Scheduler) AddJob(spec string, job Job, opts ...JobOption) (JobID, error) {
	if job == nil {
		return 0, ErrNilJob
	}
	jo := defaultJobOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(jo)
		}
	}
	id, err := s.cron.AddJob(spec, &jobWrapper{
		job:     job,
		opts:    jo,
		locker:  s.opts.locker,
		logger:  s.opts.logger,
		stats:   s.stats,
		baseCtx: s.jobCtx,
	})
	if err != nil {
		return 0, fmt.Errorf("xcron: failed to add job: %w", err)
	}
	return id, nil
}

// Remove 移除任务。
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start 在后台启动调度。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并取消正在执行的任务的 context，返回的 context 在
// 所有正在执行的任务结束后关闭。
func (s *Scheduler) Stop() context.Context {
	s.stopOnce.Do(s.jobCancel)
	return s.cron.Stop()
}

// Run 启动调度并阻塞到 ctx 结束，然后等待正在执行的任务退出。
// 返回值始终为 nil，适合交给 xrun 管理。
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

// Entries 已注册的任务。
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Stats 执行统计。
func (s *Scheduler) Stats() *Stats {
	return s.stats
}
