// Package blockmeta caches block number to timestamp lookups so dependent
// shovels don't each hit the warehouse or the chain node per block. Loaded
// in 10,000-row windows from the warehouse once the timestamp shovel has
// written that range, falling back to a live chain query for blocks not yet
// indexed.
//
// Grounded on the teacher's internal/market/price_cache.go (sorted-slice
// cache behind a RWMutex, nearest-match lookup), generalized from a
// date-keyed price series to a block-number-keyed timestamp series.
package blockmeta

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

// windowSize is how many rows are pulled from the warehouse per cache miss.
const windowSize = 10_000

type entry struct {
	number    uint64
	timestamp uint64 // unix millis; converted from the timestamp shovel's DateTime column
}

// Cache is a per-worker block metadata cache (spec.md §4.C). Block hashes
// are never cached here: a shovel that needs a hash asks the chain client
// directly, since hashes are cheap to fetch and caching them buys nothing
// once a block is finalized.
type Cache struct {
	wh    *warehouse.Client
	chain *chain.Client
	table string // warehouse table backing the timestamp series

	mu      sync.RWMutex
	entries []entry // sorted by number
	loaded  uint64  // highest number loaded from the warehouse so far
}

func New(wh *warehouse.Client, chainClient *chain.Client, timestampTable string) *Cache {
	return &Cache{wh: wh, chain: chainClient, table: timestampTable}
}

// Timestamp returns the unix-millis timestamp for blockNumber, loading a
// warehouse window on a cache miss and falling back to a live chain query
// for blocks the timestamp shovel hasn't reached yet.
func (c *Cache) Timestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	if ts, ok := c.lookup(blockNumber); ok {
		return ts, nil
	}
	if err := c.loadWindow(ctx, blockNumber); err != nil {
		return 0, err
	}
	if ts, ok := c.lookup(blockNumber); ok {
		return ts, nil
	}
	return c.liveTimestamp(ctx, blockNumber)
}

// Hash always queries the chain live; see the Cache doc comment.
func (c *Cache) Hash(ctx context.Context, blockNumber uint64) (chain.Hash, error) {
	return c.chain.GetBlockHash(ctx, blockNumber)
}

func (c *Cache) lookup(blockNumber uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].number >= blockNumber
	})
	if i < len(c.entries) && c.entries[i].number == blockNumber {
		return c.entries[i].timestamp, true
	}
	return 0, false
}

func (c *Cache) loadWindow(ctx context.Context, from uint64) error {
	rows, err := c.wh.Query(ctx, fmt.Sprintf(
		"SELECT number, timestamp FROM %s WHERE number >= ? ORDER BY number LIMIT %d",
		warehouse.QuoteIdentifier(c.table), windowSize,
	), from)
	if err != nil {
		return err
	}
	defer rows.Close()

	var fresh []entry
	for rows.Next() {
		var num uint64
		var ts time.Time
		if err := rows.Scan(&num, &ts); err != nil {
			return fmt.Errorf("blockmeta: scan window row: %w", err)
		}
		fresh = append(fresh, entry{number: num, timestamp: uint64(ts.UnixMilli())})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = mergeEntries(c.entries, fresh)
	if len(fresh) > 0 {
		last := fresh[len(fresh)-1].number
		if last > c.loaded {
			c.loaded = last
		}
	}
	return nil
}

func (c *Cache) liveTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	hash, err := c.chain.GetBlockHash(ctx, blockNumber)
	if err != nil {
		return 0, err
	}
	v, err := c.chain.Query(ctx, "Timestamp", "Now", hash)
	if err != nil {
		return 0, err
	}
	return uint64(v.Int), nil
}

// mergeEntries merges fresh (already sorted) into existing (sorted),
// deduplicating by block number and keeping the result sorted.
func mergeEntries(existing, fresh []entry) []entry {
	if len(fresh) == 0 {
		return existing
	}
	seen := make(map[uint64]struct{}, len(existing))
	for _, e := range existing {
		seen[e.number] = struct{}{}
	}
	merged := existing
	for _, e := range fresh {
		if _, ok := seen[e.number]; ok {
			continue
		}
		merged = append(merged, e)
		seen[e.number] = struct{}{}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].number < merged[j].number })
	return merged
}
