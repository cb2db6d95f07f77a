package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottthesecond/syncframe/pkg/adapter"
	"github.com/scottthesecond/syncframe/pkg/record"
	"github.com/scottthesecond/syncframe/pkg/throttler"
)

func unthrottled() *throttler.Throttler {
	return throttler.New(throttler.Config{MaxReqs: 1000, IntervalSec: 60})
}

func TestApplyWithRetry_SucceedsFirstTry(t *testing.T) {
	a := adapter.NewInMemoryAdapter()
	retries, err := applyWithRetry(context.Background(), a, record.ChangeSet{
		Upserts: []record.Record{{ID: "a1", Fields: map[string]any{"name": "Ada"}}},
	}, unthrottled(), RetryConfig{MaxAttempts: 3, BackoffSec: 0.01}, "A")

	require.NoError(t, err)
	assert.Equal(t, 0, retries)
	assert.Contains(t, a.Records(), "a1")
}

func TestApplyWithRetry_RetriesThenSucceeds(t *testing.T) {
	a := adapter.NewInMemoryAdapter()
	a.FailApplyNTimes(2, assert.AnError)

	retries, err := applyWithRetry(context.Background(), a, record.ChangeSet{
		Upserts: []record.Record{{ID: "a1"}},
	}, unthrottled(), RetryConfig{MaxAttempts: 3, BackoffSec: 0.01}, "A")

	require.NoError(t, err)
	assert.Equal(t, 2, retries)
}

func TestApplyWithRetry_ExhaustsAttemptsReturnsCycleError(t *testing.T) {
	a := adapter.NewInMemoryAdapter()
	a.FailApplyAlways(assert.AnError)

	_, err := applyWithRetry(context.Background(), a, record.ChangeSet{
		Upserts: []record.Record{{ID: "a1"}},
	}, unthrottled(), RetryConfig{MaxAttempts: 3, BackoffSec: 0.01}, "B")

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "B", ce.Side)
	assert.ErrorIs(t, ce, assert.AnError)
}

func TestApplyWithRetry_ContextCancelledDuringBackoffStopsEarly(t *testing.T) {
	a := adapter.NewInMemoryAdapter()
	a.FailApplyAlways(assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := applyWithRetry(ctx, a, record.ChangeSet{
		Upserts: []record.Record{{ID: "a1"}},
	}, unthrottled(), RetryConfig{MaxAttempts: 50, BackoffSec: 5}, "A")

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, ce, context.Canceled)
}
