package xstream

//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=xstream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry 流中的一条记录。
type Entry struct {
	ID     string
	Fields map[string]any
}

// PendingEntry 已投递未确认的条目。
type PendingEntry struct {
	ID         string        `json:"id"`
	Consumer   string        `json:"consumer"`
	Idle       time.Duration `json:"idle"`
	RetryCount int64         `json:"retry_count"`
}

// StreamInfo XINFO STREAM 的摘要。
type StreamInfo struct {
	Length          int64  `json:"length"`
	Groups          int64  `json:"groups"`
	LastGeneratedID string `json:"last_generated_id"`
	EntriesAdded    int64  `json:"entries_added"`
	FirstEntryID    string `json:"first_entry_id,omitempty"`
	LastEntryID     string `json:"last_entry_id,omitempty"`
}

// Store 追加日志存储的最小操作集。
//
// ReadGroup 的 startID 为 ">" 时读取新条目，为 "0" 时读取本消费者的积压；
// 等待超时返回空结果而不是错误。block <= 0 表示不阻塞。
type Store interface {
	Append(ctx context.Context, stream string, fields map[string]any) (string, error)
	ReadGroup(ctx context.Context, stream, group, consumer, startID string, count int64, block time.Duration) ([]Entry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	CreateGroup(ctx context.Context, stream, group, startID string) error
	DeleteConsumer(ctx context.Context, stream, group, consumer string) error
	Trim(ctx context.Context, stream string, maxLen int64) (int64, error)
	Pending(ctx context.Context, stream, group, consumer string, count int64) ([]PendingEntry, error)
	Range(ctx context.Context, stream, start, end string, count int64) ([]Entry, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	TypeOf(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, stream string, ttl time.Duration) error
	StreamInfo(ctx context.Context, stream string) (StreamInfo, error)
	Ping(ctx context.Context) error
	Close() error
}

// IsGroupExists 消费者组已存在（BUSYGROUP）。
func IsGroupExists(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// IsNoGroup 消费者组或流不存在（NOGROUP），常见于流过期或被删除之后。
func IsNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

const scanBatch = 256

// RedisStore 基于 go-redis 的 [Store]。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 包装 client。Close 会关闭 client。
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisStore{client: client}, nil
}

// Client 底层客户端。
func (s *RedisStore) Client() redis.UniversalClient { return s.client }

// Append 追加条目（XADD），返回服务端分配的 ID。
func (s *RedisStore) Append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	return s.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields}).Result()
}

// ReadGroup 以消费者组读取（XREADGROUP），阻塞超时返回空结果。block <= 0 时不阻塞。
func (s *RedisStore) ReadGroup(ctx context.Context, stream, group, consumer, startID string, count int64, block time.Duration) ([]Entry, error) {
	if block <= 0 {
		block = -1 // 不发送 BLOCK
	}
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, startID},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, st := range res {
		if st.Stream != stream {
			continue
		}
		entries = append(entries, toEntries(st.Messages)...)
	}
	return entries, nil
}

// Ack 确认条目（XACK）。
func (s *RedisStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.XAck(ctx, stream, group, ids...).Err()
}

// CreateGroup 创建消费者组（XGROUP CREATE ... MKSTREAM），组已存在时返回 BUSYGROUP 错误。
func (s *RedisStore) CreateGroup(ctx context.Context, stream, group, startID string) error {
	return s.client.XGroupCreateMkStream(ctx, stream, group, startID).Err()
}

// DeleteConsumer 从组中删除消费者（XGROUP DELCONSUMER），其待确认列表随之丢弃。
func (s *RedisStore) DeleteConsumer(ctx context.Context, stream, group, consumer string) error {
	return s.client.XGroupDelConsumer(ctx, stream, group, consumer).Err()
}

// Trim 近似裁剪（MAXLEN ~），保留条数可能略多于 maxLen。
func (s *RedisStore) Trim(ctx context.Context, stream string, maxLen int64) (int64, error) {
	return s.client.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Result()
}

// Pending 列出待确认条目（XPENDING 扩展形式），consumer 为空时列出整个组的积压。
func (s *RedisStore) Pending(ctx context.Context, stream, group, consumer string, count int64) ([]PendingEntry, error) {
	res, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   stream,
		Group:    group,
		Start:    "-",
		End:      "+",
		Count:    count,
		Consumer: consumer,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]PendingEntry, 0, len(res))
	for _, p := range res {
		out = append(out, PendingEntry{
			ID:         p.ID,
			Consumer:   p.Consumer,
			Idle:       p.Idle,
			RetryCount: p.RetryCount,
		})
	}
	return out, nil
}

// Range 按 ID 区间读取（XRANGE），count <= 0 表示不限制条数。
func (s *RedisStore) Range(ctx context.Context, stream, start, end string, count int64) ([]Entry, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, stream, start, end, count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, stream, start, end).Result()
	}
	if err != nil {
		return nil, err
	}
	return toEntries(msgs), nil
}

// Keys 使用 SCAN 遍历，不阻塞服务端。集群模式下只扫描客户端路由到的节点。
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			// SCAN 可能重复返回同一个 key
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// TypeOf 返回 key 的类型（TYPE），不存在时为 "none"。
func (s *RedisStore) TypeOf(ctx context.Context, key string) (string, error) {
	return s.client.Type(ctx, key).Result()
}

// Expire 设置整个流的过期时间（EXPIRE）。
func (s *RedisStore) Expire(ctx context.Context, stream string, ttl time.Duration) error {
	return s.client.Expire(ctx, stream, ttl).Err()
}

// StreamInfo 读取流元信息（XINFO STREAM）。
func (s *RedisStore) StreamInfo(ctx context.Context, stream string) (StreamInfo, error) {
	res, err := s.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		return StreamInfo{}, err
	}
	return StreamInfo{
		Length:          res.Length,
		Groups:          res.Groups,
		LastGeneratedID: res.LastGeneratedID,
		EntriesAdded:    res.EntriesAdded,
		FirstEntryID:    res.FirstEntry.ID,
		LastEntryID:     res.LastEntry.ID,
	}, nil
}

// Ping 检查连通性。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭底层客户端。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toEntries(msgs []redis.XMessage) []Entry {
	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{ID: m.ID, Fields: m.Values})
	}
	return entries
}

var _ Store = (*RedisStore)(nil)
