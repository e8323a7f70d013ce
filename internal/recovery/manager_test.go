package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverSkipUsesFallbackValue(t *testing.T) {
	m := NewManager()

	val, err := m.Recover(InferenceFailure(errors.New("timeout")), "correct-chunk", "original text")
	require.NoError(t, err)
	assert.Equal(t, "original text", val)

	recovered, failed := m.Stats()
	assert.Equal(t, uint64(1), recovered)
	assert.Equal(t, uint64(0), failed)
}

func TestRecoverContinueUsesPartial(t *testing.T) {
	m := NewManager()
	f := InferenceFailure(errors.New("stream cut")).WithAction(ActionContinue).WithPartial("partial output")

	val, err := m.Recover(f, "correct-chunk", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "partial output", val)
}

func TestRecoverContinueWithoutPartialBehavesLikeSkip(t *testing.T) {
	m := NewManager()
	f := InferenceFailure(errors.New("stream cut")).WithAction(ActionContinue)

	val, err := m.Recover(f, "correct-chunk", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", val)
}

func TestRecoverFallbackPrefersRegisteredHandler(t *testing.T) {
	m := NewManager()
	m.RegisterFallback("load-model", func(err error) (string, error) {
		return "handler value", nil
	})

	val, err := m.Recover(ModelNotFound(errors.New("no such file")), "load-model", "default")
	require.NoError(t, err)
	assert.Equal(t, "handler value", val)

	// Without a handler the fallback value is used.
	val, err = m.Recover(ModelNotFound(errors.New("no such file")), "other-op", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", val)
}

func TestRecoverRetryReturnsOriginalError(t *testing.T) {
	m := NewManager()
	cause := errors.New("over threshold")

	_, err := m.Recover(InsufficientMemory(cause), "load-model", "default")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
}

func TestRecoverAbortPropagates(t *testing.T) {
	m := NewManager()

	_, err := m.Recover(ChunkingFailure(errors.New("bad input")), "chunk-text", "default")
	require.Error(t, err)

	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindChunkingFailure, f.Kind)
}

func TestRecoverUnclassifiedError(t *testing.T) {
	m := NewManager()

	// No handler: reported as failure with no recovery.
	_, err := m.Recover(errors.New("boom"), "some-op", "default")
	assert.Error(t, err)

	// Registered handler recovers the generic path.
	m.RegisterFallback("some-op", func(err error) (string, error) {
		return "rescued", nil
	})
	val, err := m.Recover(errors.New("boom"), "some-op", "default")
	require.NoError(t, err)
	assert.Equal(t, "rescued", val)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return InsufficientMemory(errors.New("busy"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return ChunkingFailure(errors.New("bad input"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestDoHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, 3, time.Second, func() error {
		return errors.New("fails")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
