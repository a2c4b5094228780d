// Package retry provides the WithReconnect/WithRetry middleware combinator
// every shovel wraps its per-block processing step in: a database
// connection failure triggers a reconnect and a bounded number of retries
// before the error is allowed to propagate fatally.
//
// Grounded on the teacher's internal/flow/client.go node-pool reconnect
// pattern (disabledUntil / rate-limited retry) and internal/ingester's
// error-classification dispatch in async_worker.go (log, mark failed, don't
// retry fatal errors).
package retry

import (
	"context"
	"log"
	"time"

	"github.com/substrate-warehouse/shovels/internal/shovelerr"
)

// Op is one attempt at a unit of work, e.g. processing a single block.
type Op func(ctx context.Context) error

// Reconnector is implemented by anything that can re-establish a dropped
// connection (the warehouse client, the chain client).
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

const (
	defaultRetries = 3
	defaultDelay   = 5 * time.Second
)

// WithReconnect wraps op so that, when it fails with a DatabaseConnectionError,
// r.Reconnect is called before the error is returned to the caller (normally
// WithRetry, which will attempt op again on the now-fresh connection).
func WithReconnect(r Reconnector, op Op) Op {
	return func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !shovelerr.IsRetryable(err) {
			return err
		}
		log.Printf("[retry] reconnecting after: %v", err)
		if rerr := r.Reconnect(ctx); rerr != nil {
			log.Printf("[retry] reconnect failed: %v", rerr)
		}
		return err
	}
}

// WithRetry retries op up to `attempts` times, `delay` apart, but only for
// errors classified as retryable (DatabaseConnectionError). Any other error
// (a ShovelProcessingError, or anything unrecognized) is returned
// immediately on the first failure, matching spec.md §8: only connection
// errors are retried, processing errors are fatal.
func WithRetry(op Op, attempts int, delay time.Duration) Op {
	if attempts <= 0 {
		attempts = defaultRetries
	}
	if delay <= 0 {
		delay = defaultDelay
	}
	return func(ctx context.Context) error {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			err := op(ctx)
			if err == nil {
				return nil
			}
			lastErr = err
			if !shovelerr.IsRetryable(err) {
				return err
			}
			log.Printf("[retry] attempt %d/%d failed: %v", attempt, attempts, err)
			if attempt == attempts {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		return lastErr
	}
}
