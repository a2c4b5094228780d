package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/substrate-warehouse/shovels/internal/shovelerr"
)

type fakeReconnector struct {
	calls int
	err   error
}

func (f *fakeReconnector) Reconnect(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestWithRetrySucceedsAfterRetryableFailures(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return shovelerr.NewDatabaseConnectionError("test", errors.New("boom"))
		}
		return nil
	}
	wrapped := WithRetry(op, 5, time.Millisecond)
	if err := wrapped(context.Background()); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryDoesNotRetryFatalErrors(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		return shovelerr.NewShovelProcessingError("test_shovel", 1, errors.New("bad data"))
	}
	wrapped := WithRetry(op, 5, time.Millisecond)
	if err := wrapped(context.Background()); err == nil {
		t.Fatalf("expected fatal error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry for fatal errors)", attempts)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		return shovelerr.NewDatabaseConnectionError("test", errors.New("still down"))
	}
	wrapped := WithRetry(op, 3, time.Millisecond)
	if err := wrapped(context.Background()); err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithReconnectCallsReconnectOnRetryableError(t *testing.T) {
	reconn := &fakeReconnector{}
	op := func(ctx context.Context) error {
		return shovelerr.NewDatabaseConnectionError("test", errors.New("dropped"))
	}
	wrapped := WithReconnect(reconn, op)
	_ = wrapped(context.Background())
	if reconn.calls != 1 {
		t.Fatalf("reconnect calls = %d, want 1", reconn.calls)
	}
}

func TestWithReconnectSkipsReconnectOnFatalError(t *testing.T) {
	reconn := &fakeReconnector{}
	op := func(ctx context.Context) error {
		return shovelerr.NewShovelProcessingError("test_shovel", 1, errors.New("bad data"))
	}
	wrapped := WithReconnect(reconn, op)
	_ = wrapped(context.Background())
	if reconn.calls != 0 {
		t.Fatalf("reconnect calls = %d, want 0 for a fatal error", reconn.calls)
	}
}

func TestCombinatorOrder(t *testing.T) {
	reconn := &fakeReconnector{}
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return shovelerr.NewDatabaseConnectionError("test", errors.New("boom"))
		}
		return nil
	}
	wrapped := WithRetry(WithReconnect(reconn, op), 5, time.Millisecond)
	if err := wrapped(context.Background()); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if reconn.calls != 1 {
		t.Fatalf("reconnect calls = %d, want 1", reconn.calls)
	}
}
