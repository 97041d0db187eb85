package xstream

import (
	"errors"
	"fmt"

	"github.com/omeyang/xbus/internal/mqcore"
)

// 重导出共享错误。
var (
	ErrNilClient  = mqcore.ErrNilClient
	ErrNilMessage = mqcore.ErrNilMessage
	ErrNilHandler = mqcore.ErrNilHandler
	ErrClosed     = mqcore.ErrClosed
)

var (
	// ErrEmptyStream 流名称为空。
	ErrEmptyStream = errors.New("xstream: empty stream name")

	// ErrEmptyGroup 消费者组名称为空。
	ErrEmptyGroup = errors.New("xstream: empty group name")

	// ErrDuplicateConsumer 三元组已在本进程订阅，通过 errors.Is 匹配 [DuplicateConsumerError]。
	ErrDuplicateConsumer = errors.New("xstream: consumer already subscribed")

	// ErrConsumerNotFound 取消订阅的三元组未注册。
	ErrConsumerNotFound = errors.New("xstream: consumer not found")

	// ErrRateLimited 发布被限流。
	ErrRateLimited = errors.New("xstream: publish rate limited")

	// ErrShutdownTimeout 宽限期内仍有消费循环未退出。
	ErrShutdownTimeout = errors.New("xstream: shutdown grace period exceeded")

	// ErrInvalidMaxLen 裁剪长度为负。
	ErrInvalidMaxLen = errors.New("xstream: max length must not be negative")

	// ErrMissingPayload 条目没有 message 字段（例如已被裁剪的积压条目）。
	ErrMissingPayload = errors.New("xstream: entry has no message field")

	// ErrHandlerPanic handler 发生 panic。
	ErrHandlerPanic = errors.New("xstream: handler panic")

	// ErrNilBus 传入的 Bus 为空。
	ErrNilBus = errors.New("xstream: nil bus")
)

// PublishError 追加消息失败。不做内部重试，由调用方决定是否重发。
type PublishError struct {
	Stream string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("xstream: publish to %q: %v", e.Stream, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// DuplicateConsumerError 同一三元组重复订阅，已有消费者不受影响。
type DuplicateConsumerError struct {
	Stream   string
	Group    string
	Consumer string
}

func (e *DuplicateConsumerError) Error() string {
	return fmt.Sprintf("xstream: consumer %s/%s/%s already subscribed", e.Stream, e.Group, e.Consumer)
}

// Is 使 errors.Is(err, ErrDuplicateConsumer) 成立。
func (e *DuplicateConsumerError) Is(target error) bool {
	return target == ErrDuplicateConsumer
}

// TransientReadError 轮询失败，消费循环退避后继续，只记录日志不向外返回。
type TransientReadError struct {
	Stream   string
	Group    string
	Consumer string
	Err      error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("xstream: read %s/%s/%s: %v", e.Stream, e.Group, e.Consumer, e.Err)
}

func (e *TransientReadError) Unwrap() error { return e.Err }

// HandlerError 单条消息处理失败（含解码失败与 panic），该条目会进入死信流。
type HandlerError struct {
	Stream  string
	EntryID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("xstream: handle %s@%s: %v", e.Stream, e.EntryID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
