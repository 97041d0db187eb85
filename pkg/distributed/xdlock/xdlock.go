package xdlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNilClient = errors.New("xdlock: nil client")
	ErrEmptyKey  = errors.New("xdlock: empty key")
	ErrClosed    = errors.New("xdlock: factory closed")
	// ErrNotHeld 锁已过期或已被别的持有者拿走。
	ErrNotHeld = errors.New("xdlock: lock not held")
)

const (
	defaultPrefix = "lock:"
	defaultExpiry = 8 * time.Second
)

type lockOptions struct {
	prefix string
	expiry time.Duration
}

// Option 配置单次加锁。
type Option func(*lockOptions)

// WithKeyPrefix 默认 "lock:"，可以为空。
func WithKeyPrefix(prefix string) Option {
	return func(o *lockOptions) { o.prefix = prefix }
}

// WithExpiry 默认 8s，非正值被忽略。
func WithExpiry(d time.Duration) Option {
	return func(o *lockOptions) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// RedisFactory 基于 redsync 创建锁。一个客户端时是普通 Redis 锁，
// 多个客户端时按 Redlock 需要过半节点成功。
type RedisFactory struct {
	rs     *redsync.Redsync
	closed atomic.Bool
}

func NewRedisFactory(clients ...redis.UniversalClient) (*RedisFactory, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, 0, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, fmt.Errorf("%w: clients[%d]", ErrNilClient, i)
		}
		pools = append(pools, goredis.NewPool(c))
	}
	return &RedisFactory{rs: redsync.New(pools...)}, nil
}

// TryLock 只尝试一次。锁被别人持有时返回 (nil, nil)。
func (f *RedisFactory) TryLock(ctx context.Context, key string, opts ...Option) (*Lock, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	o := lockOptions{prefix: defaultPrefix, expiry: defaultExpiry}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	name := o.prefix + key
	m := f.rs.NewMutex(name, redsync.WithExpiry(o.expiry), redsync.WithTries(1))
	err := m.TryLockContext(ctx)
	var taken *redsync.ErrTaken
	switch {
	case err == nil:
		return &Lock{m: m, key: name}, nil
	case errors.As(err, &taken), errors.Is(err, redsync.ErrFailed):
		return nil, nil
	}
	return nil, err
}

// Close 之后不能再加锁，已拿到的 Lock 仍可释放。不关闭 Redis 客户端。
func (f *RedisFactory) Close() error {
	f.closed.Store(true)
	return nil
}

// Lock 一次成功的加锁，只有它能释放或续期。
type Lock struct {
	m   *redsync.Mutex
	key string
}

// Key 含前缀。
func (l *Lock) Key() string { return l.key }

func (l *Lock) Unlock(ctx context.Context) error {
	return settle(l.m.UnlockContext(ctx))
}

// Extend 把过期时间重置为加锁时的 expiry。
func (l *Lock) Extend(ctx context.Context) error {
	return settle(l.m.ExtendContext(ctx))
}

func settle(ok bool, err error) error {
	var taken *redsync.ErrTaken
	switch {
	case err == nil && ok:
		return nil
	case err == nil,
		errors.Is(err, redsync.ErrLockAlreadyExpired),
		errors.As(err, &taken):
		return ErrNotHeld
	}
	return err
}
