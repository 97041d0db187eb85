package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xbus/pkg/config/xconf"
	"github.com/omeyang/xbus/pkg/mq/xstream"
	"github.com/omeyang/xbus/pkg/observability/xlog"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func quietLogger(t *testing.T) xlog.LoggerWithLevel {
	t.Helper()
	logger, _, err := buildLogger(LogConfig{Level: "error"}, io.Discard)
	require.NoError(t, err)
	return logger
}

func newTestHost(t *testing.T, cfg Config) (*host, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, client := newRedis(t)
	h, err := newHost(cfg, client, quietLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.bus.Shutdown(ctx)
		h.close()
	})
	return h, mr, client
}

func get(t *testing.T, handler http.Handler, target string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
	}
	return rec.Code
}

func TestBuildLogger(t *testing.T) {
	logger, cleanup, err := buildLogger(LogConfig{Level: "warn", Format: "json"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, xlog.LevelWarn, logger.GetLevel())
	assert.NoError(t, cleanup())

	_, _, err = buildLogger(LogConfig{Level: "info", Format: "xml"}, io.Discard)
	assert.Error(t, err)
}

func TestBuildLogger_Rotation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "xbus.log")
	logger, cleanup, err := buildLogger(LogConfig{Level: "info", File: file}, io.Discard)
	require.NoError(t, err)

	logger.Info(context.Background(), "hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "service=xbusctl")
}

func TestConnect(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	require.NoError(t, connect(ctx, client, 3, time.Millisecond, xlog.Discard()))

	mr.Close()
	err := connect(ctx, client, 2, time.Millisecond, xlog.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}

func TestBusOptions_Breaker(t *testing.T) {
	_, client := newRedis(t)

	cfg := defaultConfig().Bus
	bus, err := xstream.New(client, busOptions(cfg, client, xlog.Discard(), nil)...)
	require.NoError(t, err)
	assert.Empty(t, bus.BreakerState())
	require.NoError(t, bus.Shutdown(context.Background()))

	cfg.Breaker.Enabled = true
	cfg.PublishRatePerSecond = 100
	bus, err = xstream.New(client, busOptions(cfg, client, xlog.Discard(), nil)...)
	require.NoError(t, err)
	assert.Equal(t, "closed", bus.BreakerState())
	require.NoError(t, bus.Shutdown(context.Background()))
}

func TestNewHost_Retention(t *testing.T) {
	cfg := defaultConfig()
	h, _, _ := newTestHost(t, cfg)
	assert.Nil(t, h.retention)

	cfg.Retention = xstream.RetentionConfig{Streams: map[string]int64{"orders": 100}}
	h, _, _ = newTestHost(t, cfg)
	assert.NotNil(t, h.retention)
}

func TestHost_TapsConsumeAndAck(t *testing.T) {
	cfg := defaultConfig()
	cfg.Taps = []TapConfig{{Stream: "orders", Group: "audit", Consumer: "tap-1", Block: 50 * time.Millisecond}}
	h, _, client := newTestHost(t, cfg)
	ctx := context.Background()

	require.NoError(t, h.subscribeTaps(ctx))

	msg, err := xstream.NewMessage("order.created", "test", map[string]int{"id": 1})
	require.NoError(t, err)
	_, err = h.bus.Publish(ctx, "orders", msg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.bus.Metrics().MessagesProcessed == 1
	}, waitFor, tick)

	pending, err := client.XPending(ctx, "orders", "audit").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	consumers := h.bus.Consumers()
	require.Len(t, consumers, 1)
	assert.Equal(t, "tap-1", consumers[0].Consumer)
}

func TestHost_SubscribeTapsFailsAfterShutdown(t *testing.T) {
	cfg := defaultConfig()
	cfg.Taps = []TapConfig{{Stream: "orders", Group: "audit"}}
	h, _, _ := newTestHost(t, cfg)

	require.NoError(t, h.bus.Shutdown(context.Background()))
	err := h.subscribeTaps(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders/audit")
}

func TestHost_OnConfigChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))
	src, err := xconf.New(path)
	require.NoError(t, err)

	logger, _, err := buildLogger(LogConfig{Level: "info"}, io.Discard)
	require.NoError(t, err)
	h := &host{logger: logger}

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	require.NoError(t, src.Reload())
	h.onConfigChange(src, nil)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))
	require.NoError(t, src.Reload())
	h.onConfigChange(src, nil)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel(), "invalid level is ignored")

	h.onConfigChange(src, assert.AnError)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())
}

func TestServe_RunsUntilCancelled(t *testing.T) {
	mr, _ := newRedis(t)

	cfg := defaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.HTTP.Addr = ""
	cfg.Taps = []TapConfig{{Stream: "orders", Group: "audit", Block: 50 * time.Millisecond}}

	logger := quietLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, nil, logger) }()

	require.Eventually(t, func() bool { return mr.Exists("orders") }, waitFor, tick,
		"tap group is created on startup")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ConnectFailure(t *testing.T) {
	mr, _ := newRedis(t)
	cfg := defaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.ConnectAttempts = 1
	mr.Close()

	err := serve(context.Background(), cfg, nil, quietLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}

func TestStatusHandler(t *testing.T) {
	h, _, client := newTestHost(t, defaultConfig())
	handler := h.statusHandler()
	ctx := context.Background()

	var health xstream.HealthStatus
	assert.Equal(t, http.StatusOK, get(t, handler, "/healthz", &health))
	assert.True(t, health.Healthy)

	msg, err := xstream.NewMessage("t", "s", nil)
	require.NoError(t, err)
	_, err = h.bus.Publish(ctx, "orders", msg)
	require.NoError(t, err)

	var streams []string
	assert.Equal(t, http.StatusOK, get(t, handler, "/streams", &streams))
	assert.Equal(t, []string{"orders"}, streams)

	var consumers []xstream.ConsumerInfo
	assert.Equal(t, http.StatusOK, get(t, handler, "/consumers", &consumers))
	assert.Empty(t, consumers)

	var metrics struct {
		Bus  xstream.MetricsSnapshot `json:"bus"`
		OTel []metricPoint           `json:"otel"`
	}
	assert.Equal(t, http.StatusOK, get(t, handler, "/metrics", &metrics))
	assert.Equal(t, int64(1), metrics.Bus.MessagesSent)
	var sent float64
	for _, p := range metrics.OTel {
		if p.Name == "xbus.messages.sent" {
			sent = p.Value
		}
	}
	assert.Equal(t, float64(1), sent)

	require.NoError(t, client.XGroupCreate(ctx, "orders", "g", "0").Err())
	require.NoError(t, client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: "g", Consumer: "c", Streams: []string{"orders", ">"}, Count: 10, Block: -1,
	}).Err())
	var pending []xstream.PendingEntry
	assert.Equal(t, http.StatusOK, get(t, handler, "/streams/orders/pending?group=g", &pending))
	assert.Len(t, pending, 1)

	var letters []xstream.DeadLetter
	assert.Equal(t, http.StatusOK, get(t, handler, "/streams/orders/dead-letters?count=5", &letters))
	assert.Empty(t, letters)
}

func TestStatusHandler_BadRequests(t *testing.T) {
	h, _, _ := newTestHost(t, defaultConfig())
	handler := h.statusHandler()

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, get(t, handler, "/streams/orders/pending", &body))
	assert.Contains(t, body["error"], "group")

	assert.Equal(t, http.StatusBadRequest, get(t, handler, "/streams/orders/dead-letters?count=0", &body))
	assert.Equal(t, http.StatusBadRequest, get(t, handler, "/streams/orders/dead-letters?count=x", &body))
}

func TestStatusHandler_Unhealthy(t *testing.T) {
	h, mr, _ := newTestHost(t, defaultConfig())
	mr.Close()

	var health xstream.HealthStatus
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h.statusHandler(), "/healthz", &health))
	assert.False(t, health.Healthy)
}
