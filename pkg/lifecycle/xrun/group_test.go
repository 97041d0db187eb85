package xrun

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func untilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGroup_ErrorCancelsOthers(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go("consumer", untilDone)
	g.Go("retention", func(context.Context) error { return assert.AnError })

	assert.ErrorIs(t, g.Wait(), assert.AnError)
}

func TestGroup_CancelCause(t *testing.T) {
	reason := errors.New("maintenance")
	g, _ := NewGroup(context.Background())
	g.Go("consumer", untilDone)
	g.Cancel(reason)
	assert.ErrorIs(t, g.Wait(), reason)
}

func TestGroup_ParentCancelReturnsNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := NewGroup(ctx)
	g.Go("consumer", untilDone)
	cancel()
	assert.NoError(t, g.Wait())
	assert.Error(t, gctx.Err())
}

func TestGroup_AllReturnNil(t *testing.T) {
	var ran atomic.Int32
	g, _ := NewGroup(context.Background())
	for range 3 {
		g.Go("once", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(3), ran.Load())
}

func TestGroup_NilFunc(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go("nil", nil)
	assert.ErrorIs(t, g.Wait(), ErrNilFunc)
}

func TestGroup_HooksRunOnceInOrder(t *testing.T) {
	var order []string
	flushErr := errors.New("flush failed")

	g, _ := NewGroup(context.Background(),
		WithShutdownHook("bus", func(context.Context) error {
			order = append(order, "bus")
			return flushErr
		}),
		WithShutdownHook("metrics", func(ctx context.Context) error {
			order = append(order, "metrics")
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		}),
		WithShutdownHook("ignored", nil),
		WithHookTimeout(time.Second),
	)
	g.Go("noop", func(context.Context) error { return nil })

	err := g.Wait()
	assert.ErrorIs(t, err, flushErr)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "bus", he.Name)
	assert.Contains(t, he.Error(), "hook bus")
	assert.Equal(t, []string{"bus", "metrics"}, order)

	assert.ErrorIs(t, g.runHooks(), flushErr)
	assert.Len(t, order, 2)
}

func TestRun_Signal(t *testing.T) {
	sigc := make(chan os.Signal, 1)
	ctx := context.WithValue(context.Background(), injectedSignalsKey{}, (<-chan os.Signal)(sigc))

	var hooked atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []Option{
			WithName("test"),
			WithShutdownHook("bus", func(context.Context) error {
				hooked.Store(true)
				return nil
			}),
		}, Service{Name: "consumer", Run: untilDone})
	}()

	sigc <- syscall.SIGTERM
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSignal)
		var se *SignalError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, syscall.SIGTERM, se.Signal)
		assert.True(t, hooked.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after signal")
	}
}

func TestRun_WithoutSignals(t *testing.T) {
	err := Run(context.Background(), []Option{WithSignals()},
		Service{Name: "once", Run: func(context.Context) error { return nil }})
	assert.NoError(t, err)
}

func TestSignalError(t *testing.T) {
	err := &SignalError{Signal: syscall.SIGINT}
	assert.ErrorIs(t, err, ErrSignal)
	assert.Equal(t, "received signal interrupt", err.Error())
}
