package xcron

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
)

// ErrNilJob 任务为 nil。
var ErrNilJob = errors.New("xcron: job cannot be nil")

// JobID 任务标识，复用 cron.EntryID。
type JobID = cron.EntryID

// Job 定时任务。ctx 携带超时，任务应响应 ctx.Done()。
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc 函数适配器。
type JobFunc func(ctx context.Context) error

// Run 实现 [Job]。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}
