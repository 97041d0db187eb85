package xcron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xbus/pkg/observability/xlog"
)

const unlockTimeout = 5 * time.Second

// jobWrapper 为任务加上锁、超时、panic 恢复与统计，实现 cron.Job。
type jobWrapper struct {
	job     Job
	opts    *jobOptions
	locker  Locker
	logger  xlog.Logger
	stats   *Stats
	baseCtx context.Context
}

func (w *jobWrapper) Run() {
	ctx := w.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	handle, ok := w.acquire(ctx)
	if !ok {
		w.stats.recordSkip()
		return
	}
	if handle != nil {
		defer w.release(handle)
	}

	if w.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	err := w.execute(ctx)
	w.stats.recordExecution(start, err)

	if err != nil {
		w.logger.Error(ctx, "job failed", w.nameAttr(), xlog.Err(err))
		return
	}
	w.logger.Debug(ctx, "job completed", w.nameAttr(), xlog.Duration(time.Since(start)))
}

// acquire 未命名任务不加锁，返回 (nil, true)。
func (w *jobWrapper) acquire(ctx context.Context) (LockHandle, bool) {
	if w.opts.name == "" {
		return nil, true
	}
	handle, err := w.locker.TryLock(ctx, w.opts.name, w.opts.lockTTL)
	if err != nil {
		w.logger.Warn(ctx, "failed to acquire lock", w.nameAttr(), xlog.Err(err))
		return nil, false
	}
	if handle == nil {
		w.logger.Debug(ctx, "lock held elsewhere, skipping", w.nameAttr())
		return nil, false
	}
	return handle, true
}

// release 使用独立 context，任务取消不影响解锁。
func (w *jobWrapper) release(handle LockHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := handle.Unlock(ctx); err != nil {
		w.logger.Warn(ctx, "failed to release lock", w.nameAttr(), xlog.Err(err))
	}
}

func (w *jobWrapper) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xcron: job panic: %v", r)
		}
	}()
	return w.job.Run(ctx)
}

func (w *jobWrapper) nameAttr() slog.Attr {
	return slog.String("job", w.opts.name)
}
