package xctx_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/omeyang/xbus/pkg/context/xctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)

func TestTraceID(t *testing.T) {
	assert.Empty(t, xctx.TraceID(context.Background()))

	ctx, err := xctx.WithTraceID(context.Background(), "trace-123")
	require.NoError(t, err)
	assert.Equal(t, "trace-123", xctx.TraceID(ctx))

	ctx, err = xctx.WithTraceID(ctx, "new-trace")
	require.NoError(t, err)
	assert.Equal(t, "new-trace", xctx.TraceID(ctx))

	var nilCtx context.Context
	assert.Empty(t, xctx.TraceID(nilCtx))
	_, err = xctx.WithTraceID(nilCtx, "trace-123")
	assert.ErrorIs(t, err, xctx.ErrNilContext)
}

func TestSpanRequestFlags(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		setter func(context.Context, string) (context.Context, error)
		getter func(context.Context) string
	}{
		{"SpanID", "span-456", xctx.WithSpanID, xctx.SpanID},
		{"RequestID", "req-789", xctx.WithRequestID, xctx.RequestID},
		{"TraceFlags", "01", xctx.WithTraceFlags, xctx.TraceFlags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.getter(context.Background()))
			ctx, err := tt.setter(context.Background(), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.value, tt.getter(ctx))

			var nilCtx context.Context
			_, err = tt.setter(nilCtx, tt.value)
			assert.ErrorIs(t, err, xctx.ErrNilContext)
		})
	}
}

func TestRequireTraceID(t *testing.T) {
	_, err := xctx.RequireTraceID(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingTraceID)

	var nilCtx context.Context
	_, err = xctx.RequireTraceID(nilCtx)
	assert.ErrorIs(t, err, xctx.ErrNilContext)

	ctx, err := xctx.WithTraceID(context.Background(), "t1")
	require.NoError(t, err)
	v, err := xctx.RequireTraceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", v)
}

func TestGenerateIDs(t *testing.T) {
	traceID := xctx.GenerateTraceID()
	assert.Len(t, traceID, xctx.TraceIDSize*2)
	assert.Regexp(t, hexPattern, traceID)

	spanID := xctx.GenerateSpanID()
	assert.Len(t, spanID, xctx.SpanIDSize*2)
	assert.Regexp(t, hexPattern, spanID)

	assert.NotEqual(t, xctx.GenerateRequestID(), xctx.GenerateRequestID())
}

func TestEnsureTrace(t *testing.T) {
	t.Run("fills missing fields", func(t *testing.T) {
		ctx, err := xctx.EnsureTrace(context.Background())
		require.NoError(t, err)
		tr := xctx.GetTrace(ctx)
		assert.NotEmpty(t, tr.TraceID)
		assert.NotEmpty(t, tr.SpanID)
		assert.NotEmpty(t, tr.RequestID)
		assert.Empty(t, tr.TraceFlags)
	})

	t.Run("keeps existing fields", func(t *testing.T) {
		ctx, err := xctx.WithTraceID(context.Background(), "upstream")
		require.NoError(t, err)
		ctx, err = xctx.EnsureTrace(ctx)
		require.NoError(t, err)
		assert.Equal(t, "upstream", xctx.TraceID(ctx))
		assert.NotEmpty(t, xctx.SpanID(ctx))
	})

	t.Run("nil context", func(t *testing.T) {
		var nilCtx context.Context
		_, err := xctx.EnsureTrace(nilCtx)
		assert.ErrorIs(t, err, xctx.ErrNilContext)
	})
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	tr := xctx.Trace{TraceID: "t", SpanID: "s", TraceFlags: "01"}
	headers := tr.ToHeaders(map[string]string{"custom": "v"})

	assert.Equal(t, "v", headers["custom"])
	assert.Equal(t, "t", headers[xctx.KeyTraceID])
	assert.NotContains(t, headers, xctx.KeyRequestID)
	assert.Equal(t, tr, xctx.TraceFromHeaders(headers))

	assert.Nil(t, xctx.Trace{}.ToHeaders(nil))
}

func TestWithTraceSkipsEmpty(t *testing.T) {
	ctx, err := xctx.WithRequestID(context.Background(), "keep")
	require.NoError(t, err)

	ctx, err = xctx.WithTrace(ctx, xctx.Trace{TraceID: "t"})
	require.NoError(t, err)
	assert.Equal(t, "t", xctx.TraceID(ctx))
	assert.Equal(t, "keep", xctx.RequestID(ctx))
}
