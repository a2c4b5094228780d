// Package taoprice buffers a USD price sample on each block its sampling
// cadence selects, sourced from the CoinMarketCap-compatible oracle in
// internal/market. Per spec.md §6, sampling is daily up to block
// dailyCadenceEndBlock and every 25 blocks (roughly 5 minutes) after it, since polling
// the oracle every single block would both waste rate-limit budget and
// produce samples finer than the oracle itself offers.
//
// Grounded on original_source/shovel_tao_price/{main,cmc_client}.py (the
// CMC_TAO_ID=22974 contract, daily/25-block cadence split) and the
// teacher's internal/ingester/daily_stats_worker.go for the per-block
// worker shape.
package taoprice

import (
	"context"
	"time"

	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/market"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "tao_price"
	TableName  = "tao_price"

	// dailyCadenceEndBlock is the last block sampled once per day before
	// switching to the finer 25-block cadence, per spec.md §6.
	dailyCadenceEndBlock = 4_249_779
	// fineCadenceBlocks is how often (in blocks) samples are taken once
	// past dailyCadenceEndBlock, approximately 5 minutes at 12s blocks.
	fineCadenceBlocks = 25
	// blocksPerDay approximates a calendar day at 12s blocks, used for the
	// daily-cadence sampling check before dailyCadenceEndBlock.
	blocksPerDay = 7200
)

type Shovel struct {
	chain *chain.Client
	price *market.Client
	buf   *buffer.Buffer
}

func New(chainClient *chain.Client, priceClient *market.Client, buf *buffer.Buffer) *Shovel {
	return &Shovel{chain: chainClient, price: priceClient, buf: buf}
}

func (s *Shovel) Name() string { return ShovelName }

func (s *Shovel) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	if !due(blockNumber) {
		return nil
	}
	hash, err := s.chain.GetBlockHash(ctx, blockNumber)
	if err != nil {
		return err
	}
	tsVal, err := s.chain.Query(ctx, "Timestamp", "Now", hash)
	if err != nil {
		return err
	}
	blockTime := time.UnixMilli(int64(tsVal.AsUint())).UTC()

	quote, err := s.price.Historical(ctx, blockTime)
	if err != nil {
		return err
	}
	s.buf.Insert(ctx, TableName, buffer.Row{blockNumber, blockTime, quote.Price, quote.MarketCap, quote.Volume24h})
	return nil
}

// due reports whether blockNumber is on this shovel's sampling cadence:
// once a day up to dailyCadenceEndBlock, every fineCadenceBlocks after.
func due(blockNumber uint64) bool {
	if blockNumber <= dailyCadenceEndBlock {
		return blockNumber%blocksPerDay == 0
	}
	return blockNumber%fineCadenceBlocks == 0
}

func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    block_number UInt64 CODEC(Delta, ZSTD),\n" +
		"    timestamp DateTime CODEC(Delta, ZSTD),\n" +
		"    price Float64 CODEC(ZSTD),\n" +
		"    market_cap Float64 CODEC(ZSTD),\n" +
		"    volume Float64 CODEC(ZSTD)\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"PARTITION BY toYYYYMM(timestamp)\n" +
		"ORDER BY block_number\n"
}
