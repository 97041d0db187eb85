package xstream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xbus/pkg/observability/xlog"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func testOptions(opts ...Option) []Option {
	return append([]Option{
		WithLogger(xlog.Discard()),
		WithTracer(NoopTracer{}),
		WithReadBackoff(10 * time.Millisecond),
	}, opts...)
}

func shutdownOnCleanup(t *testing.T, bus *Bus) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})
}

// newTestBus 基于 miniredis 的 Bus，测试结束时依次关闭 Bus、客户端、miniredis。
func newTestBus(t *testing.T, opts ...Option) (*Bus, *miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus, err := New(client, testOptions(opts...)...)
	require.NoError(t, err)
	shutdownOnCleanup(t, bus)
	return bus, mr, client
}

func newMockBus(t *testing.T, opts ...Option) (*Bus, *MockStore) {
	t.Helper()
	store := NewMockStore(gomock.NewController(t))
	bus, err := NewWithStore(store, testOptions(opts...)...)
	require.NoError(t, err)
	shutdownOnCleanup(t, bus)
	return bus, store
}

// fastSub 短阻塞的订阅参数，取消订阅与关闭都能很快完成。
func fastSub(group string) SubscribeOptions {
	return SubscribeOptions{Group: group, Consumer: "c1", Block: 50 * time.Millisecond}
}

// idleRead 模拟一次超时为空的阻塞读取。
func idleRead(ctx context.Context, _, _, _, _ string, _ int64, _ time.Duration) ([]Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func payloadFields(t *testing.T, msg *Message) map[string]any {
	t.Helper()
	raw, err := encodeMessage(msg)
	require.NoError(t, err)
	return map[string]any{FieldMessage: raw}
}

// recorder 并发安全地收集 handler 收到的消息。
type recorder struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *recorder) handle(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

// countingStore 统计轮询次数。
type countingStore struct {
	Store
	reads atomic.Int64
}

func (s *countingStore) ReadGroup(ctx context.Context, stream, group, consumer, startID string, count int64, block time.Duration) ([]Entry, error) {
	s.reads.Add(1)
	return s.Store.ReadGroup(ctx, stream, group, consumer, startID, count, block)
}

// flakyAckStore 前 failures 次 Ack 返回错误。
type flakyAckStore struct {
	Store
	failures atomic.Int64
	acks     atomic.Int64
}

func (s *flakyAckStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	s.acks.Add(1)
	if s.failures.Add(-1) >= 0 {
		return errors.New("READONLY You can't write against a read only replica")
	}
	return s.Store.Ack(ctx, stream, group, ids...)
}
