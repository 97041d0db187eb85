package xstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_EncodesData(t *testing.T) {
	msg, err := NewMessage("order", "svc-a", map[string]int{"x": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(msg.Data))

	var got map[string]int
	require.NoError(t, msg.DecodeData(&got))
	assert.Equal(t, 1, got["x"])
}

func TestNewMessage_UnencodableData(t *testing.T) {
	_, err := NewMessage("order", "svc-a", make(chan int))
	assert.Error(t, err)
}

func TestMessage_DecodeDataEmpty(t *testing.T) {
	var v map[string]any
	assert.NoError(t, (&Message{}).DecodeData(&v))
	assert.Nil(t, v)
}

func TestDecodeMessage(t *testing.T) {
	t.Run("missing field", func(t *testing.T) {
		_, err := decodeMessage(map[string]any{"other": "x"})
		assert.ErrorIs(t, err, ErrMissingPayload)
	})
	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeMessage(map[string]any{FieldMessage: "{"})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrMissingPayload)
	})
	t.Run("bytes payload", func(t *testing.T) {
		msg, err := decodeMessage(map[string]any{FieldMessage: []byte(`{"id":"m1","type":"t","source":"s","timestamp":"2024-01-01T00:00:00Z"}`)})
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
	})
}

func TestEncodeMessage_OmitsEmptyOptionalFields(t *testing.T) {
	raw, err := encodeMessage(&Message{ID: "m1", Type: "t", Source: "s"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "target")
	assert.NotContains(t, raw, "ttl")
	assert.NotContains(t, raw, "headers")
}
