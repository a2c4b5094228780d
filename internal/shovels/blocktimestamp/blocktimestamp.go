// Package blocktimestamp is the simplest shovel: one row per block mapping
// its number to its on-chain timestamp. Every other shovel that needs a
// block's wall-clock time reads this table through internal/blockmeta
// instead of re-querying the chain.
//
// Grounded on the teacher's internal/ingester/daily_stats_worker.go (a
// single-query-per-block worker shape) and
// original_source/shovel_block_timestamps/main.py.
package blocktimestamp

import (
	"context"
	"time"

	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "block_timestamps"
	TableName  = "block_timestamps"
)

type Shovel struct {
	chain *chain.Client
	buf   *buffer.Buffer
}

func New(chainClient *chain.Client, buf *buffer.Buffer) *Shovel {
	return &Shovel{chain: chainClient, buf: buf}
}

func (s *Shovel) Name() string { return ShovelName }

func (s *Shovel) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	hash, err := s.chain.GetBlockHash(ctx, blockNumber)
	if err != nil {
		return err
	}
	ts, err := s.chain.Query(ctx, "Timestamp", "Now", hash)
	if err != nil {
		return err
	}
	s.buf.Insert(ctx, TableName, buffer.Row{blockNumber, time.UnixMilli(int64(ts.AsUint())).UTC()})
	return nil
}

// CreateTableSQL is the fixed schema for block_timestamps; it never grows a
// new version since its columns never change shape.
func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    number UInt64 CODEC(Delta, ZSTD),\n" +
		"    timestamp DateTime CODEC(Delta, ZSTD)\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"ORDER BY (number)\n" +
		"PARTITION BY toYYYYMM(timestamp)\n"
}
