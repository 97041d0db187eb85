package xcron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xbus/pkg/observability/xlog"
)

type schedulerOptions struct {
	locker   Locker
	logger   xlog.Logger
	location *time.Location
	parser   cron.Parser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		locker:   NoopLocker(),
		logger:   xlog.Discard(),
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SchedulerOption 调度器配置选项。
type SchedulerOption func(*schedulerOptions)

// WithLocker 设置分布式锁，nil 被忽略。默认 [NoopLocker]。
func WithLocker(locker Locker) SchedulerOption {
	return func(o *schedulerOptions) {
		if locker != nil {
			o.locker = locker
		}
	}
}

// WithLogger 设置日志记录器，nil 被忽略。
func WithLogger(logger xlog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocation cron 表达式按此时区解释，默认本地时区。
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级精度（6 段表达式）。
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}
}

type jobOptions struct {
	name    string
	timeout time.Duration
	lockTTL time.Duration
}

func defaultJobOptions() *jobOptions {
	return &jobOptions{lockTTL: 5 * time.Minute}
}

// JobOption 任务配置选项。
type JobOption func(*jobOptions)

// WithName 任务名，同时作为锁 key。未命名的任务不加锁。
func WithName(name string) JobOption {
	return func(o *jobOptions) {
		o.name = name
	}
}

// WithTimeout 单次执行超时，0 表示不限制。
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithLockTTL 锁过期时间，默认 5m。应大于任务的最长执行时间。
func WithLockTTL(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}
