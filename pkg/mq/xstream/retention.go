package xstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xbus/pkg/distributed/xcron"
	"github.com/omeyang/xbus/pkg/distributed/xdlock"
	"github.com/omeyang/xbus/pkg/observability/xlog"
)

const (
	defaultRetentionSchedule = "@every 1m"
	defaultRetentionLockTTL  = 30 * time.Second
	retentionLockPrefix      = "xbus:retention:"
	retentionJobName         = "trim"
)

// RetentionConfig 定时裁剪配置。
type RetentionConfig struct {
	// Schedule cron 表达式，支持 "@every 1m" 这类描述符，默认每分钟。
	Schedule string `koanf:"schedule" json:"schedule"`

	// Streams 流名称到保留条数的映射。
	Streams map[string]int64 `koanf:"streams" json:"streams"`

	// LockTTL 裁剪锁的过期时间，也是单次裁剪的超时时间，默认 30s。
	LockTTL time.Duration `koanf:"lock_ttl" json:"lock_ttl"`
}

// Retention 按计划把配置的流裁剪到保留条数。
//
// 多副本部署时用 Redis 锁保证同一时刻只有一个副本执行，锁被占用的副本跳过本次。
type Retention struct {
	bus       *Bus
	cfg       RetentionConfig
	scheduler *xcron.Scheduler
	locks     *xdlock.RedisFactory
	logger    xlog.Logger
}

// NewRetention 创建裁剪任务。client 为 nil 时不加锁，只适合单副本。
func NewRetention(bus *Bus, client redis.UniversalClient, cfg RetentionConfig) (*Retention, error) {
	if bus == nil {
		return nil, ErrNilBus
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultRetentionSchedule
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultRetentionLockTTL
	}
	for stream, maxLen := range cfg.Streams {
		if stream == "" {
			return nil, ErrEmptyStream
		}
		if maxLen < 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMaxLen, stream)
		}
	}

	r := &Retention{bus: bus, cfg: cfg, logger: bus.opts.logger}

	locker := xcron.NoopLocker()
	if client != nil {
		factory, err := xdlock.NewRedisFactory(client)
		if err != nil {
			return nil, err
		}
		dl, err := xcron.NewXdlockLocker(factory, xcron.WithLockKeyPrefix(retentionLockPrefix))
		if err != nil {
			return nil, err
		}
		r.locks = factory
		locker = dl
	}

	r.scheduler = xcron.New(xcron.WithLocker(locker), xcron.WithLogger(r.logger))
	if _, err := r.scheduler.AddFunc(cfg.Schedule, r.TrimAll,
		xcron.WithName(retentionJobName),
		xcron.WithTimeout(cfg.LockTTL),
		xcron.WithLockTTL(cfg.LockTTL),
	); err != nil {
		return nil, fmt.Errorf("xstream: retention schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// TrimAll 立即裁剪所有配置的流，单个流失败不影响其他流。
func (r *Retention) TrimAll(ctx context.Context) error {
	var errs []error
	for _, stream := range slices.Sorted(maps.Keys(r.cfg.Streams)) {
		trimmed, err := r.bus.TrimStream(ctx, stream, r.cfg.Streams[stream])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if trimmed > 0 {
			r.logger.Info(ctx, "stream trimmed",
				xlog.Component(componentName),
				slogStream(stream),
				slog.Int64("trimmed", trimmed),
			)
		}
	}
	return errors.Join(errs...)
}

// Run 启动调度并阻塞到 ctx 结束，等待进行中的裁剪完成后返回 nil。
func (r *Retention) Run(ctx context.Context) error {
	err := r.scheduler.Run(ctx)
	if r.locks != nil {
		_ = r.locks.Close()
	}
	return err
}

// Stats 执行统计。
func (r *Retention) Stats() *xcron.Stats {
	return r.scheduler.Stats()
}
