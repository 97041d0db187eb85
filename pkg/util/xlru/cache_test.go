package xlru

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	for _, cfg := range []Config{{}, {Size: -1}, {Size: MaxSize + 1}} {
		_, err := New[string, int](cfg)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
	_, err := New[string, int](Config{Size: 1, TTL: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New[string, string](Config{Size: 2})
	require.NoError(t, err)

	assert.False(t, c.Set("orders", "stream"))
	c.Set("session", "string")
	v, ok := c.Get("orders")
	require.True(t, ok)
	assert.Equal(t, "stream", v)

	assert.True(t, c.Set("users", "hash"))
	_, ok = c.Get("session")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Delete("orders"))
	assert.False(t, c.Delete("orders"))
	c.Purge()
	assert.Zero(t, c.Len())
}

func TestCache_TTL(t *testing.T) {
	c, err := New[string, int](Config{Size: 4, TTL: time.Minute})
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(59 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry removed on read")
}

func TestCache_NoTTLNeverExpires(t *testing.T) {
	c, err := New[string, int](Config{Size: 1})
	require.NoError(t, err)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(24 * 365 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestCache_Close(t *testing.T) {
	c, err := New[string, int](Config{Size: 4})
	require.NoError(t, err)
	c.Set("k", 1)
	c.Close()
	c.Close()

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.False(t, c.Set("k", 2))
	assert.False(t, c.Delete("k"))
	assert.Zero(t, c.Len())
}
