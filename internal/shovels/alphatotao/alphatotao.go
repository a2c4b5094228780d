// Package alphatotao computes each subnet's alpha->tao exchange rate per
// block: enumerate subnet ids from SubtensorModule.NetworksAdded, then for
// each netuid divide SubnetTAO by SubnetAlphaIn.
//
// Grounded on the teacher's internal/ingester/daily_stats_worker.go
// (per-block derived-metric worker shape) and
// original_source/shovel_alpha_to_tao/main.py, whose table carries a
// timestamp column resolved through the shared block_metadata.py helper
// like every other original shovel.
package alphatotao

import (
	"context"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "alpha_to_tao"
	TableName  = "alpha_to_tao"
)

type Shovel struct {
	chain *chain.Client
	buf   *buffer.Buffer
	meta  *blockmeta.Cache
}

func New(chainClient *chain.Client, buf *buffer.Buffer, meta *blockmeta.Cache) *Shovel {
	return &Shovel{chain: chainClient, buf: buf, meta: meta}
}

func (s *Shovel) Name() string { return ShovelName }

func (s *Shovel) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	hash, err := s.meta.Hash(ctx, blockNumber)
	if err != nil {
		return err
	}
	tsMillis, err := s.meta.Timestamp(ctx, blockNumber)
	if err != nil {
		return err
	}
	timestamp := time.UnixMilli(int64(tsMillis)).UTC()

	netuids, err := s.chain.Query(ctx, "SubtensorModule", "NetworksAdded", hash)
	if err != nil {
		return err
	}
	for _, netuidVal := range netuids.Seq {
		netuid := netuidVal.AsUint()
		tao, err := s.chain.Query(ctx, "SubtensorModule", "SubnetTAO", hash, chain.Uint(netuid))
		if err != nil {
			return err
		}
		alphaIn, err := s.chain.Query(ctx, "SubtensorModule", "SubnetAlphaIn", hash, chain.Uint(netuid))
		if err != nil {
			return err
		}
		rate := exchangeRate(tao.AsUint(), alphaIn.AsUint())
		s.buf.Insert(ctx, TableName, buffer.Row{blockNumber, timestamp, netuid, rate})
	}
	return nil
}

// exchangeRate divides subnetTAO by subnetAlphaIn, returning 0 when the
// divisor is 0 instead of propagating a division-by-zero (spec.md §4.H).
func exchangeRate(subnetTAO, subnetAlphaIn uint64) float64 {
	if subnetAlphaIn == 0 {
		return 0
	}
	return float64(subnetTAO) / float64(subnetAlphaIn)
}

func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    block_number UInt64 CODEC(Delta, ZSTD),\n" +
		"    timestamp DateTime CODEC(Delta, ZSTD),\n" +
		"    netuid UInt16,\n" +
		"    alpha_to_tao Float64\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"ORDER BY (block_number, netuid)\n" +
		"PARTITION BY toYYYYMM(timestamp)\n"
}
