// Package shovel implements the runtime every chain-to-warehouse worker
// shares: a monotonic catch-up loop over block numbers, checkpoint-as-data
// persistence through the write buffer, dependency gating on upstream
// checkpoints, and the retryable/fatal error dispatch from spec.md §8.
//
// Grounded on the teacher's internal/ingester/service.go (Config defaults,
// Start's catch-up loop shape) and internal/ingester/async_worker.go
// (dependency gate, retry/backoff-on-error dispatch).
package shovel

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/retry"
	"github.com/substrate-warehouse/shovels/internal/shovelerr"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

// checkpointTable holds one row per shovel: its name and the highest block
// number it has durably processed. Checkpoints are written through the
// buffer like any other row, which is the source of the documented
// one-cycle lag (spec.md §4.E, Open Question decision 3): a checkpoint for
// block N enqueued at the start of a flush cycle only becomes durable once
// the NEXT cycle flushes it.
const checkpointTable = "shovel_checkpoints"

// Processor is what a concrete shovel implements: the per-block work.
// Returning a *shovelerr.ShovelProcessingError (or any error IsRetryable
// reports false for) stops the runtime; a *shovelerr.DatabaseConnectionError
// is retried by the runtime's retry/reconnect wrapping.
type Processor interface {
	// ProcessBlock handles one block's worth of work, inserting any rows
	// into buf itself.
	ProcessBlock(ctx context.Context, blockNumber uint64) error
	Name() string
}

// Config configures a Runtime. Zero values take the defaults documented in
// spec.md §6/§8.
type Config struct {
	StartBlock uint64
	// Dependencies lists upstream shovel names this one must not run ahead
	// of; the runtime polls their checkpoints before processing a block.
	Dependencies []string
	// DependencyPollInterval is how often an unmet dependency is re-checked.
	DependencyPollInterval time.Duration
	// IdlePollInterval is how often the runtime checks for new chain head
	// blocks once it has caught up.
	IdlePollInterval time.Duration
	// RetryAttempts/RetryDelay configure the retry wrapping around each
	// block's processing.
	RetryAttempts int
	RetryDelay    time.Duration
	// InstanceID tags every log line this runtime emits, so logs from
	// concurrently-running shovel processes can be told apart in an
	// aggregated log viewer. Generated if left empty.
	InstanceID string
}

func (c *Config) setDefaults() {
	if c.DependencyPollInterval == 0 {
		c.DependencyPollInterval = 60 * time.Second
	}
	if c.IdlePollInterval == 0 {
		c.IdlePollInterval = 6 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.New().String()[:8]
	}
}

// headNumberFunc resolves the chain's current finalized block number.
type headNumberFunc func(ctx context.Context) (uint64, error)

// checkpointReaderFunc reads a shovel's durable checkpoint.
type checkpointReaderFunc func(ctx context.Context, shovel string) (blockNumber uint64, ok bool, err error)

// reconnector is the narrow interface the retry wrapping needs; NewRuntime
// supplies a bothReconnector over the chain and warehouse clients.
type reconnector interface {
	Reconnect(ctx context.Context) error
}

// Runtime drives a Processor from its last checkpoint to the chain's
// finalized head, forever. Its chain/warehouse dependencies are narrowed to
// function values and a small interface so tests can exercise the catch-up
// and dependency-gate logic without a live chain node or warehouse.
type Runtime struct {
	proc           Processor
	headNumber     headNumberFunc
	readCheckpoint checkpointReaderFunc
	reconn         reconnector
	buf            *buffer.Buffer
	cfg            Config
}

// bothReconnector reconnects the chain client and then the warehouse
// client, matching spec.md §4.D/§7's "reconnect-before-retry" policy, which
// applies to both I/O dependencies a DatabaseConnectionError can come from.
type bothReconnector struct {
	chain *chain.Client
	wh    *warehouse.Client
}

func (r bothReconnector) Reconnect(ctx context.Context) error {
	if err := r.chain.Reconnect(ctx); err != nil {
		return err
	}
	return r.wh.Reconnect(ctx)
}

// NewRuntime wires a Runtime against real chain and warehouse clients.
func NewRuntime(proc Processor, chainClient *chain.Client, wh *warehouse.Client, buf *buffer.Buffer, cfg Config) *Runtime {
	cfg.setDefaults()
	return &Runtime{
		proc: proc,
		headNumber: func(ctx context.Context) (uint64, error) {
			hash, err := chainClient.GetChainFinalisedHead(ctx)
			if err != nil {
				return 0, err
			}
			return chainClient.GetBlockNumber(ctx, hash)
		},
		readCheckpoint: func(ctx context.Context, shovel string) (uint64, bool, error) {
			return readCheckpointFromWarehouse(ctx, wh, shovel)
		},
		reconn: bothReconnector{chain: chainClient, wh: wh},
		buf:    buf,
		cfg:    cfg,
	}
}

// Run processes blocks forever until ctx is cancelled or a fatal error
// occurs.
func (r *Runtime) Run(ctx context.Context) error {
	log.Printf("[%s/%s] starting from checkpoint", r.proc.Name(), r.cfg.InstanceID)
	next, err := r.nextBlock(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		headNumber, err := r.headNumber(ctx)
		if err != nil {
			log.Printf("[%s/%s] failed to resolve finalized head number: %v", r.proc.Name(), r.cfg.InstanceID, err)
			time.Sleep(r.cfg.RetryDelay)
			continue
		}
		if next > headNumber {
			time.Sleep(r.cfg.IdlePollInterval)
			continue
		}

		if err := r.waitForDependencies(ctx, next); err != nil {
			return err
		}

		op := retry.WithRetry(retry.WithReconnect(r.reconn, func(ctx context.Context) error {
			return r.proc.ProcessBlock(ctx, next)
		}), r.cfg.RetryAttempts, r.cfg.RetryDelay)

		if err := op(ctx); err != nil {
			fatal := shovelerr.AsFatal(r.proc.Name(), next, err)
			log.Printf("[%s/%s] fatal error at block %d: %v", r.proc.Name(), r.cfg.InstanceID, next, fatal)
			return fatal
		}

		r.enqueueCheckpoint(next)
		next++
	}
}

// nextBlock returns the next block number to process: the durable
// checkpoint's successor, or cfg.StartBlock if no checkpoint exists yet.
func (r *Runtime) nextBlock(ctx context.Context) (uint64, error) {
	cp, ok, err := r.readCheckpoint(ctx, r.proc.Name())
	if err != nil {
		return 0, err
	}
	if !ok {
		return r.cfg.StartBlock, nil
	}
	return cp + 1, nil
}

// EnsureCheckpointTable creates the shared checkpoint table if it does not
// already exist. Every shovel writes into the same table keyed by its own
// name, so this only needs to run once per warehouse, not once per shovel.
func EnsureCheckpointTable(ctx context.Context, wh *warehouse.Client) error {
	return wh.Execute(ctx, "CREATE TABLE IF NOT EXISTS "+warehouse.QuoteIdentifier(wh.Database())+"."+warehouse.QuoteIdentifier(checkpointTable)+" (\n"+
		"    shovel String,\n"+
		"    block_number UInt64,\n"+
		"    updated_at DateTime\n"+
		") ENGINE = ReplacingMergeTree()\n"+
		"ORDER BY shovel\n")
}

func readCheckpointFromWarehouse(ctx context.Context, wh *warehouse.Client, name string) (uint64, bool, error) {
	rows, err := wh.Query(ctx,
		"SELECT block_number FROM "+warehouse.QuoteIdentifier(checkpointTable)+" WHERE shovel = ? ORDER BY block_number DESC LIMIT 1",
		name,
	)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, nil
	}
	var blockNumber uint64
	if err := rows.Scan(&blockNumber); err != nil {
		return 0, false, err
	}
	return blockNumber, true, nil
}

func (r *Runtime) enqueueCheckpoint(blockNumber uint64) {
	r.buf.Insert(context.Background(), checkpointTable, buffer.Row{r.proc.Name(), blockNumber, time.Now()})
}

// waitForDependencies blocks until every upstream shovel's durable
// checkpoint has reached blockNumber, polling every
// cfg.DependencyPollInterval (spec.md §4.I/§4.J dependency gate).
func (r *Runtime) waitForDependencies(ctx context.Context, blockNumber uint64) error {
	for _, dep := range r.cfg.Dependencies {
		for {
			cp, ok, err := r.readCheckpoint(ctx, dep)
			if err != nil {
				return err
			}
			if ok && cp >= blockNumber {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.DependencyPollInterval):
			}
		}
	}
	return nil
}
