package recovery

import (
	"context"
	"fmt"
	"time"
)

// Do runs op up to attempts times with exponential backoff, starting at
// baseDelay. Retry looping is deliberately separate from the recovery
// manager: Recover decides the strategy, Do executes the Retry case.
//
// Non-retryable classified failures stop the loop immediately. The last
// error is returned after the final attempt.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}

		if f, ok := AsFailure(err); ok && f.Action != ActionRetry {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, err)
}
