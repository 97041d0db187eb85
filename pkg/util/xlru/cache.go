package xlru

import (
	"errors"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxSize Size 的上限。
const MaxSize = 1 << 24

var (
	ErrInvalidSize = errors.New("xlru: size must be in (0, 16777216]")
	ErrInvalidTTL  = errors.New("xlru: TTL must not be negative")
)

// Config TTL 为 0 表示条目不过期。
type Config struct {
	Size int
	TTL  time.Duration
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache 并发安全的 LRU，过期条目在读取时惰性剔除，不占用后台 goroutine。
// Close 之后读总是未命中，写被丢弃。
type Cache[K comparable, V any] struct {
	lru    *lru.Cache[K, entry[V]]
	ttl    time.Duration
	now    func() time.Time
	closed atomic.Bool
}

func New[K comparable, V any](cfg Config) (*Cache[K, V], error) {
	if cfg.Size <= 0 || cfg.Size > MaxSize {
		return nil, ErrInvalidSize
	}
	if cfg.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	l, err := lru.New[K, entry[V]](cfg.Size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{lru: l, ttl: cfg.TTL, now: time.Now}, nil
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set 写入并重新计时，返回是否淘汰了其他条目。
func (c *Cache[K, V]) Set(key K, value V) (evicted bool) {
	if c.closed.Load() {
		return false
	}
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	return c.lru.Add(key, e)
}

func (c *Cache[K, V]) Delete(key K) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Remove(key)
}

// Len 可能包含尚未被读到的过期条目。
func (c *Cache[K, V]) Len() int {
	if c.closed.Load() {
		return 0
	}
	return c.lru.Len()
}

func (c *Cache[K, V]) Purge() { c.lru.Purge() }

// Close 清空缓存，可重复调用。
func (c *Cache[K, V]) Close() {
	c.closed.Store(true)
	c.lru.Purge()
}
