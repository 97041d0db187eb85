package mqcore

import "errors"

// 各 mq 包重导出这些错误，文本不带 internal 包名。
var (
	ErrNilClient  = errors.New("mq: nil client")
	ErrNilMessage = errors.New("mq: nil message")
	ErrNilHandler = errors.New("mq: nil handler")
	ErrClosed     = errors.New("mq: client closed")
)
