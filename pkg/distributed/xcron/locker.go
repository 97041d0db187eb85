package xcron

import (
	"context"
	"errors"
	"time"

	"github.com/omeyang/xbus/pkg/distributed/xdlock"
)

// ErrNilFactory xdlock 工厂为 nil。
var ErrNilFactory = errors.New("xcron: xdlock factory cannot be nil")

// LockHandle 一次成功的锁获取。
type LockHandle interface {
	Unlock(ctx context.Context) error
	Key() string
}

// Locker 分布式锁。
//
// TryLock 必须非阻塞；handle 为 nil 且 err 为 nil 表示锁被其他实例持有。
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// NoopLocker 无锁实现，用于单副本部署。
func NoopLocker() Locker {
	return noopLocker{}
}

type noopLocker struct{}

func (noopLocker) TryLock(_ context.Context, key string, _ time.Duration) (LockHandle, error) {
	return noopHandle(key), nil
}

type noopHandle string

func (noopHandle) Unlock(context.Context) error { return nil }
func (h noopHandle) Key() string                { return string(h) }

// XdlockLocker 把 xdlock.RedisFactory 适配为 [Locker]。
type XdlockLocker struct {
	factory   *xdlock.RedisFactory
	keyPrefix string
}

// XdlockLockerOption 配置选项。
type XdlockLockerOption func(*XdlockLocker)

// WithLockKeyPrefix 锁 key 前缀，默认 "xcron:"。
func WithLockKeyPrefix(prefix string) XdlockLockerOption {
	return func(l *XdlockLocker) {
		l.keyPrefix = prefix
	}
}

// NewXdlockLocker 创建适配器。factory 的生命周期由调用者管理。
func NewXdlockLocker(factory *xdlock.RedisFactory, opts ...XdlockLockerOption) (*XdlockLocker, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	l := &XdlockLocker{factory: factory, keyPrefix: "xcron:"}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// TryLock 以 ttl 作为锁过期时间尝试获取一次。
func (l *XdlockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	handle, err := l.factory.TryLock(ctx, key,
		xdlock.WithKeyPrefix(l.keyPrefix),
		xdlock.WithExpiry(ttl),
	)
	if err != nil || handle == nil {
		return nil, err
	}
	return handle, nil
}

var (
	_ Locker = noopLocker{}
	_ Locker = (*XdlockLocker)(nil)
)
