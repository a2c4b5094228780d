// Package buffer implements the shared write buffer every shovel inserts
// rows through: an in-memory table-to-rows map drained on a timer, with
// backpressure when a table grows too large and recursive bisection when a
// batch insert fails partway.
//
// Grounded on the original implementation's
// scraper_service/shared/clickhouse/batch_insert.py (buffer_insert,
// flush_buffer, batch_insert_into_clickhouse_table), restructured around
// golang.org/x/sync/errgroup (limited to one insert at a time) for the
// per-cycle per-table flush instead of a
// Python ThreadPoolExecutor, and log.Printf in the teacher's
// internal/ingester/async_worker.go style.
package buffer

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/substrate-warehouse/shovels/internal/shovelerr"
)

// Row is one table row as ordered, already-formatted SQL values; the
// dynamic-schema engine is responsible for handing us values clickhouse-go
// can bind directly (go native types, time.Time, etc).
type Row []any

// Batch is the narrow slice of clickhouse-go's driver.Batch this package
// needs, so tests can exercise bisection with a fake instead of a live
// ClickHouse connection.
type Batch interface {
	Append(v ...any) error
	Send() error
}

// PrepareBatchFunc opens a new batch insert against table. Production
// callers wrap (*warehouse.Client).PrepareBatch in a closure, since its
// clickhouse.Batch return value satisfies Batch but the function types
// differ; tests pass a fake.
type PrepareBatchFunc func(ctx context.Context, table string) (Batch, error)

// maxBufferedRows is the per-table backpressure threshold (spec.md §4.B).
const maxBufferedRows = 1_000_000

// flushInterval is the steady-state flush period; flushIntervalDebug is used
// when Buffer.Debug is set, matching the original's faster debug cadence.
const (
	flushInterval      = 5 * time.Second
	flushIntervalDebug = 1 * time.Second
)

// Buffer is the per-worker write buffer (spec.md §4.B). One Buffer backs one
// shovel process; it is never shared across shovels.
type Buffer struct {
	prepareBatch PrepareBatchFunc
	Debug        bool

	mu   sync.Mutex
	rows map[string][]Row
}

func New(prepareBatch PrepareBatchFunc) *Buffer {
	return &Buffer{prepareBatch: prepareBatch, rows: make(map[string][]Row)}
}

// Insert queues a row for table. It blocks (sleeping, not busy-spinning)
// while the table's queue exceeds maxBufferedRows, matching buffer_insert's
// throttle loop.
func (b *Buffer) Insert(ctx context.Context, table string, row Row) {
	b.mu.Lock()
	b.rows[table] = append(b.rows[table], row)
	b.mu.Unlock()

	for {
		b.mu.Lock()
		n := len(b.rows[table])
		b.mu.Unlock()
		if n <= maxBufferedRows {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
	}
}

// Pending reports the current queue length for table, used by tests and by
// shovels that want to log backpressure state.
func (b *Buffer) Pending(table string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows[table])
}

// FlushLoop drains the buffer on a fixed interval until ctx is cancelled.
// started is invoked at the top of each cycle before the snapshot is taken;
// done is invoked after the cycle's inserts complete with the number of
// tables and total rows flushed. Both callbacks may be nil.
//
// FlushLoop returns the first fatal error encountered inserting a singleton
// row (a batch that failed even after being bisected all the way down),
// matching the original's propagation of a final single-row exception out of
// batch_insert_into_clickhouse_table.
func (b *Buffer) FlushLoop(ctx context.Context, started func(), done func(tables, rows int)) error {
	interval := flushInterval
	if b.Debug {
		interval = flushIntervalDebug
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if started != nil {
			started()
		}
		if err := b.flushOnce(ctx, done); err != nil {
			return err
		}
	}
}

func (b *Buffer) flushOnce(ctx context.Context, done func(tables, rows int)) error {
	b.mu.Lock()
	tasks := b.rows
	b.rows = make(map[string][]Row)
	b.mu.Unlock()

	if len(tasks) == 0 {
		if done != nil {
			done(0, 0)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1) // single insert worker: tables are inserted one at a time
	totalRows := 0
	for table, rows := range tasks {
		table, rows := table, rows
		totalRows += len(rows)
		g.Go(func() error {
			return b.insertWithBisection(gctx, table, rows)
		})
	}
	err := g.Wait()
	if done != nil {
		done(len(tasks), totalRows)
	}
	return err
}

// insertWithBisection mirrors batch_insert_into_clickhouse_table: on any
// insert failure, split the batch in half and retry each half
// independently; a singleton that still fails is a fatal error for the
// shovel (spec.md §4.B, §8 ShovelProcessingError).
func (b *Buffer) insertWithBisection(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := b.insertBatch(ctx, table, rows); err != nil {
		if len(rows) > 1 {
			mid := len(rows) / 2
			log.Printf("[buffer] insert into %s failed (%d rows): %v; bisecting into %d and %d", table, len(rows), err, mid, len(rows)-mid)
			if err := b.insertWithBisection(ctx, table, rows[:mid]); err != nil {
				return err
			}
			return b.insertWithBisection(ctx, table, rows[mid:])
		}
		log.Printf("[buffer] insert of singleton row into %s failed permanently: %v", table, err)
		return shovelerr.NewShovelProcessingError(table, 0, err)
	}
	return nil
}

func (b *Buffer) insertBatch(ctx context.Context, table string, rows []Row) error {
	batch, err := b.prepareBatch(ctx, table)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return err
		}
	}
	return batch.Send()
}
