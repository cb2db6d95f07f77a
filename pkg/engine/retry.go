package engine

import (
	"context"
	"math"
	"time"

	"github.com/scottthesecond/syncframe/pkg/adapter"
	"github.com/scottthesecond/syncframe/pkg/record"
	"github.com/scottthesecond/syncframe/pkg/throttler"
)

// applyWithRetry implements §4.5.1: throttle, apply, and on failure sleep
// backoffSec * 2^(k-1) seconds before retrying, up to maxAttempts. This
// is a hand-rolled select-loop retry, matching the teacher's
// CosmosDBStreamProvider.Listen exponential-backoff loop rather than a
// third-party retry library.
func applyWithRetry(ctx context.Context, a adapter.Adapter, batch record.ChangeSet, th *throttler.Throttler, retry RetryConfig, sideLabel string) (retries int, err error) {
	var lastErr error

	for k := 1; k <= retry.MaxAttempts; k++ {
		if err := th.Acquire(ctx); err != nil {
			return retries, &CycleError{Side: sideLabel, Err: err}
		}

		lastErr = a.ApplyChanges(ctx, batch)
		if lastErr == nil {
			return retries, nil
		}

		if k == retry.MaxAttempts {
			break
		}

		retries++
		backoff := time.Duration(retry.BackoffSec * math.Pow(2, float64(k-1)) * float64(time.Second))
		select {
		case <-ctx.Done():
			return retries, &CycleError{Side: sideLabel, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	return retries, &CycleError{Side: sideLabel, Err: lastErr}
}
