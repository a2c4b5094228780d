// Package dailystake snapshots every (hotkey, coldkey) stake pair once
// every skipInterval blocks by paging the chain's stake double map.
//
// Grounded on the teacher's internal/ingester/daily_balance_worker.go
// (skip-interval cadence) and
// original_source/shovel_daily_stake/main.py (exact schema: block_number,
// timestamp, coldkey, hotkey, stake; ORDER BY (coldkey, hotkey, timestamp)).
package dailystake

import (
	"context"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "daily_stake"
	TableName  = "stake_daily_map"

	DefaultSkipInterval = 7200
)

type Shovel struct {
	chain        *chain.Client
	buf          *buffer.Buffer
	meta         *blockmeta.Cache
	skipInterval uint64
}

func New(chainClient *chain.Client, buf *buffer.Buffer, meta *blockmeta.Cache, skipInterval uint64) *Shovel {
	if skipInterval == 0 {
		skipInterval = DefaultSkipInterval
	}
	return &Shovel{chain: chainClient, buf: buf, meta: meta, skipInterval: skipInterval}
}

func (s *Shovel) Name() string { return ShovelName }

func (s *Shovel) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	if blockNumber%s.skipInterval != 0 {
		return nil
	}
	hash, err := s.meta.Hash(ctx, blockNumber)
	if err != nil {
		return err
	}
	tsMillis, err := s.meta.Timestamp(ctx, blockNumber)
	if err != nil {
		return err
	}
	timestamp := time.UnixMilli(int64(tsMillis)).UTC()

	entries, err := s.chain.QueryMap(ctx, "SubtensorModule", "Stake", hash, 1000)
	if err != nil {
		return err
	}
	for _, kv := range entries {
		hotkey, coldkey, ok := hotkeyColdkey(kv.Key)
		if !ok {
			continue
		}
		s.buf.Insert(ctx, TableName, buffer.Row{blockNumber, timestamp, coldkey, hotkey, kv.Value.AsUint()})
	}
	return nil
}

// hotkeyColdkey extracts the (hotkey, coldkey) double-map key pair, matching
// the original's `result[0]` (hotkey) / `result[1][0]` (coldkey) shape.
func hotkeyColdkey(key []chain.Value) (hotkey, coldkey string, ok bool) {
	if len(key) < 2 {
		return "", "", false
	}
	return key[0].Str, key[1].Str, true
}

func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    block_number UInt64 CODEC(Delta, ZSTD),\n" +
		"    timestamp DateTime CODEC(Delta, ZSTD),\n" +
		"    coldkey String CODEC(ZSTD),\n" +
		"    hotkey String CODEC(ZSTD),\n" +
		"    stake UInt64 CODEC(Delta, ZSTD)\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"PARTITION BY toYYYYMM(timestamp)\n" +
		"ORDER BY (coldkey, hotkey, timestamp)\n"
}
