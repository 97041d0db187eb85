package xstream

import (
	"encoding/json"
	"fmt"
	"time"
)

// FieldMessage 条目中保存消息信封的字段名。
const FieldMessage = "message"

// Message 消息信封，以 JSON 存入条目的 message 字段。
type Message struct {
	// ID 生产者指定的消息 ID，为空时 Publish 生成 UUID。
	ID string `json:"id"`

	Type   string `json:"type"`
	Source string `json:"source"`
	Target string `json:"target,omitempty"`

	// Data 业务数据，对总线不透明。
	Data json.RawMessage `json:"data,omitempty"`

	// Timestamp 生产时间，为零时 Publish 填入当前时间。
	Timestamp time.Time `json:"timestamp"`

	// TTL 大于 0 时发布后对整个流设置该秒数的过期时间（后写覆盖）。
	TTL int64 `json:"ttl,omitempty"`

	// Headers 追踪信息等元数据。
	Headers map[string]string `json:"headers,omitempty"`
}

// NewMessage 以 JSON 编码 data 创建消息。
func NewMessage(msgType, source string, data any) (*Message, error) {
	msg := &Message{Type: msgType, Source: source}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("xstream: encode data: %w", err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// DecodeData 把 Data 解码到 v。
func (m *Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

func encodeMessage(m *Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("xstream: encode message: %w", err)
	}
	return string(b), nil
}

// rawPayload 条目中 message 字段的原始文本。
func rawPayload(fields map[string]any) (string, bool) {
	switch v := fields[FieldMessage].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func decodeMessage(fields map[string]any) (*Message, error) {
	raw, ok := rawPayload(fields)
	if !ok {
		return nil, ErrMissingPayload
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("xstream: decode message: %w", err)
	}
	return &m, nil
}
