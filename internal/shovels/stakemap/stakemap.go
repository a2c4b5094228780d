// Package stakemap maintains an in-memory (hotkey, coldkey) -> stake map,
// updated incrementally per block by two triggers -- a subnet's pending
// emission just having paid out, and StakeAdded/StakeRemoved events at this
// block -- then buffers the entire map as a snapshot every block.
//
// Grounded on original_source/shovel_stake_map/main.py's proof-diff
// full-table shape (table name, columns, ORDER BY), adapted to the
// pending-emission-transition and event-replay incremental-update algorithm
// spec.md §4.I calls for, and the teacher's internal/ingester/staking_worker.go
// for the dependency-aware per-block worker shape.
package stakemap

import (
	"context"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "stake_double_map"
	TableName  = "stake_double_map"
)

// stakeKey identifies one entry of the in-memory stake map.
type stakeKey struct {
	hotkey  string
	coldkey string
}

type Shovel struct {
	chain *chain.Client
	buf   *buffer.Buffer
	meta  *blockmeta.Cache

	lastPendingEmission map[uint64]uint64
	stakes              map[stakeKey]uint64
}

func New(chainClient *chain.Client, buf *buffer.Buffer, meta *blockmeta.Cache) *Shovel {
	return &Shovel{
		chain:               chainClient,
		buf:                 buf,
		meta:                meta,
		lastPendingEmission: make(map[uint64]uint64),
		stakes:              make(map[stakeKey]uint64),
	}
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

	refresh := make(map[string]struct{})

	for _, netuidVal := range netuids.Seq {
		netuid := netuidVal.AsUint()
		pendingVal, err := s.chain.Query(ctx, "SubtensorModule", "PendingEmission", hash, chain.Uint(netuid))
		if err != nil {
			return err
		}
		current := pendingVal.AsUint()
		previous := s.lastPendingEmission[netuid]
		s.lastPendingEmission[netuid] = current

		if !pendingEmissionJustPaidOut(previous, current) {
			continue
		}
		hotkeys, err := s.chain.QueryMap(ctx, "SubtensorModule", "Keys", hash, 1000, chain.Uint(netuid))
		if err != nil {
			return err
		}
		for _, kv := range hotkeys {
			refresh[kv.Value.Str] = struct{}{}
		}
	}

	records, err := s.chain.GetEvents(ctx, hash)
	if err != nil {
		return err
	}
	for _, hotkey := range stakeEventHotkeys(records) {
		refresh[hotkey] = struct{}{}
	}

	for hotkey := range refresh {
		coldkeyVal, err := s.chain.Query(ctx, "SubtensorModule", "Owner", hash, chain.String(hotkey))
		if err != nil {
			return err
		}
		coldkey := coldkeyVal.Str
		if coldkey == "" {
			continue
		}
		stakeVal, err := s.chain.Query(ctx, "SubtensorModule", "Stake", hash, chain.String(hotkey), chain.String(coldkey))
		if err != nil {
			return err
		}
		s.stakes[stakeKey{hotkey: hotkey, coldkey: coldkey}] = stakeVal.AsUint()
	}

	for key, stake := range s.stakes {
		s.buf.Insert(ctx, TableName, buffer.Row{blockNumber, timestamp, key.hotkey, key.coldkey, stake})
	}
	return nil
}

// pendingEmissionJustPaidOut reports the transition spec.md §4.I triggers a
// full hotkey refresh on: pending emission was nonzero last block and is
// zero now.
func pendingEmissionJustPaidOut(previous, current uint64) bool {
	return current == 0 && previous != 0
}

// stakeEventHotkeys extracts the hotkey from each SubtensorModule
// StakeAdded/StakeRemoved event this block, trying a named "hotkey"
// attribute first and falling back to the second element of a positional
// (coldkey, hotkey, netuid, amount) tuple, the shape Bittensor's pallet
// emits these events with.
func stakeEventHotkeys(records []chain.EventRecord) []string {
	var hotkeys []string
	for _, r := range records {
		if r.Module != "SubtensorModule" {
			continue
		}
		if r.Event != "StakeAdded" && r.Event != "StakeRemoved" {
			continue
		}
		if v, ok := r.Attributes.Get("hotkey"); ok {
			hotkeys = append(hotkeys, v.Str)
			continue
		}
		if r.Attributes.Kind == chain.KindSeq && len(r.Attributes.Seq) > 1 {
			hotkeys = append(hotkeys, r.Attributes.Seq[1].Str)
		}
	}
	return hotkeys
}

func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    block_number UInt64 CODEC(Delta, ZSTD),\n" +
		"    timestamp DateTime CODEC(Delta, ZSTD),\n" +
		"    hotkey String CODEC(ZSTD),\n" +
		"    coldkey String CODEC(ZSTD),\n" +
		"    stake UInt64 CODEC(Delta, ZSTD)\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"ORDER BY (hotkey, coldkey, block_number, timestamp)\n"
}
