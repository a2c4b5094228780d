package buffer

import (
	"context"
	"errors"
	"testing"
)

// fakeBatch records appended rows and fails Send whenever the batch holds
// exactly failLen rows, letting tests drive bisection deterministically.
type fakeBatch struct {
	rows    *[]Row
	failLen int // fail Send if this batch has exactly failLen rows
}

func (f *fakeBatch) Append(v ...any) error {
	*f.rows = append(*f.rows, Row(v))
	return nil
}

func (f *fakeBatch) Send() error {
	if f.failLen > 0 && len(*f.rows) == f.failLen {
		return errors.New("simulated insert failure")
	}
	return nil
}

func TestFlushOnceSucceedsWithoutBisection(t *testing.T) {
	var captured []Row
	b := New(func(ctx context.Context, table string) (Batch, error) {
		return &fakeBatch{rows: &captured}, nil
	})
	b.Insert(context.Background(), "events", Row{1, "a"})
	b.Insert(context.Background(), "events", Row{2, "b"})

	if err := b.flushOnce(context.Background(), nil); err != nil {
		t.Fatalf("flushOnce: %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("captured %d rows, want 2", len(captured))
	}
}

func TestFlushOnceBisectsOnFailure(t *testing.T) {
	calls := 0
	b := New(func(ctx context.Context, table string) (Batch, error) {
		calls++
		var rows []Row
		return &fakeBatch{rows: &rows, failLen: 4}, nil
	})
	for i := 0; i < 4; i++ {
		b.Insert(context.Background(), "events", Row{i})
	}
	if err := b.flushOnce(context.Background(), nil); err != nil {
		t.Fatalf("flushOnce: %v", err)
	}
	// One failing attempt at size 4, then two succeeding attempts at size 2 each.
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestFlushOnceFailsFatalOnSingletonFailure(t *testing.T) {
	b := New(func(ctx context.Context, table string) (Batch, error) {
		var rows []Row
		return &fakeBatch{rows: &rows, failLen: 1}, nil
	})
	b.Insert(context.Background(), "events", Row{1})
	err := b.flushOnce(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected fatal error for singleton row failure")
	}
}

func TestPendingCountsRowsAboveBackpressureThreshold(t *testing.T) {
	b := New(func(ctx context.Context, table string) (Batch, error) {
		var rows []Row
		return &fakeBatch{rows: &rows}, nil
	})
	for i := 0; i < maxBufferedRows+1; i++ {
		b.mu.Lock()
		b.rows["events"] = append(b.rows["events"], Row{i})
		b.mu.Unlock()
	}
	if b.Pending("events") != maxBufferedRows+1 {
		t.Fatalf("pending = %d, want %d", b.Pending("events"), maxBufferedRows+1)
	}
}
