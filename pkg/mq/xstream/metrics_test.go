package xstream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"
)

func TestListStreams_FiltersByType(t *testing.T) {
	bus, mr, _ := newTestBus(t)
	ctx := context.Background()

	for _, s := range []string{"b", "a"} {
		_, err := bus.Publish(ctx, s, &Message{Type: "t", Source: "x"})
		require.NoError(t, err)
	}
	require.NoError(t, mr.Set("plain", "v"))
	mr.HSet("hash", "f", "v")

	streams, err := bus.ListStreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, streams)
	assert.Equal(t, int64(2), bus.Metrics().StreamCount)
}

func TestListStreams_CachesKeyTypes(t *testing.T) {
	bus, store := newMockBus(t)
	store.EXPECT().Keys(gomock.Any(), "*").Return([]string{"s", "k"}, nil).Times(2)
	store.EXPECT().TypeOf(gomock.Any(), "s").Return("stream", nil).Times(1)
	store.EXPECT().TypeOf(gomock.Any(), "k").Return("string", nil).Times(1)

	for range 2 {
		streams, err := bus.ListStreams(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"s"}, streams)
	}
}

func TestListStreams_DoesNotCacheVanishedKeys(t *testing.T) {
	bus, store := newMockBus(t)
	store.EXPECT().Keys(gomock.Any(), "*").Return([]string{"gone"}, nil).Times(2)
	store.EXPECT().TypeOf(gomock.Any(), "gone").Return("none", nil).Times(2)

	for range 2 {
		streams, err := bus.ListStreams(context.Background())
		require.NoError(t, err)
		assert.Empty(t, streams)
	}
}

func TestListStreams_ScanFailure(t *testing.T) {
	bus, store := newMockBus(t)
	boom := errors.New("LOADING")
	store.EXPECT().Keys(gomock.Any(), "*").Return(nil, boom)

	_, err := bus.ListStreams(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRegisterMetrics_ExportsSnapshot(t *testing.T) {
	bus, _, _ := newTestBus(t)
	ctx := context.Background()
	_, err := bus.Publish(ctx, "s", &Message{Type: "t", Source: "x"})
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	reg, err := bus.RegisterMetrics(provider.Meter("xstream-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Unregister() })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				values[m.Name] = data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				values[m.Name] = data.DataPoints[0].Value
			}
		}
	}
	assert.Equal(t, int64(1), values["xbus.messages.sent"])
	assert.Equal(t, int64(0), values["xbus.messages.failed"])
	assert.Contains(t, values, "xbus.consumers.active")
	assert.Contains(t, values, "xbus.streams")
	assert.Len(t, values, 6)
}
