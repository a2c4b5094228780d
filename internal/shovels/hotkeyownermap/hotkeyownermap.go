// Package hotkeyownermap tracks which coldkey owns each hotkey. Recomputing
// the full owner map every block would be wasteful since ownership rarely
// changes, so this shovel first checks whether the owner map's storage
// subtree changed at all via a Merkle read proof, and only re-pages the map
// when it did.
//
// Grounded on original_source/shovel_hotkey_owner_map/main.py
// (check_root_read_proof's disjoint-proof-set change detection, exact
// schema and ORDER BY), using internal/chain.ProofSetsDisjoint built for
// this comparison.
package hotkeyownermap

import (
	"context"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "hotkey_owner_map"
	TableName  = "hotkey_owner_map"

	// ownersPrefix is the storage key prefix for SubtensorModule.Owner,
	// verbatim from spec.md §6.
	ownersPrefix = "0x658faa385070e074c85bf6b568cf0555eca6b7a1fdc9f689184ecb4f359c0518"
)

// owner is one (hotkey, coldkey) pair.
type owner struct {
	hotkey  string
	coldkey string
}

type Shovel struct {
	chain *chain.Client
	buf   *buffer.Buffer
	meta  *blockmeta.Cache

	lastProof  map[string]struct{}
	lastOwners []owner
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

	proof, err := s.chain.GetReadProof(ctx, []string{ownersPrefix}, hash)
	if err != nil {
		return err
	}
	thisProof := proof.ProofSet()
	changed := shouldRefresh(s.lastProof, thisProof)
	s.lastProof = thisProof

	owners := s.lastOwners
	if changed {
		entries, err := s.chain.QueryMap(ctx, "SubtensorModule", "Owner", hash, 1000)
		if err != nil {
			return err
		}
		owners = make([]owner, 0, len(entries))
		for _, kv := range entries {
			if len(kv.Key) == 0 {
				continue
			}
			owners = append(owners, owner{hotkey: kv.Key[0].Str, coldkey: kv.Value.Str})
		}
		s.lastOwners = owners
	}

	for _, o := range owners {
		s.buf.Insert(ctx, TableName, buffer.Row{blockNumber, timestamp, o.hotkey, o.coldkey})
	}
	return nil
}

// shouldRefresh reports whether the owner map must be re-paged: on the
// first block (no prior proof) or whenever the proof set changed entirely,
// matching the original's `last_proof is None or last_proof.isdisjoint(...)`.
func shouldRefresh(lastProof, thisProof map[string]struct{}) bool {
	return lastProof == nil || chain.ProofSetsDisjoint(lastProof, thisProof)
}

func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    block_number UInt64 CODEC(Delta, ZSTD),\n" +
		"    timestamp DateTime CODEC(Delta, ZSTD),\n" +
		"    hotkey String CODEC(ZSTD),\n" +
		"    coldkey String CODEC(ZSTD)\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"PARTITION BY toYYYYMM(timestamp)\n" +
		"ORDER BY (hotkey, coldkey, timestamp)\n"
}
