// Package events buffers one row per System.Events entry into a table
// whose schema is derived at runtime from that event's attributes, via
// internal/schema. Duplicate events within a block are distinguished by a
// per-block-monotonic event_index.
//
// Grounded on original_source/shovel_events/main.py (exact per-event flow:
// generate_column_definitions -> get_table_name -> create table if needed
// -> buffer insert) and the teacher's internal/ingester/worker.go for the
// per-block fetch-then-fan-out shape.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/schema"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const ShovelName = "events"

var leadingColumns = []schema.LeadingColumn{
	{Name: "block_number", Type: "UInt64 CODEC(Delta, ZSTD)"},
	{Name: "timestamp", Type: "DateTime CODEC(Delta, ZSTD)"},
	{Name: "event_index", Type: "UInt64 CODEC(Delta(1), ZSTD)"},
}

type Shovel struct {
	chain    *chain.Client
	wh       *warehouse.Client
	buf      *buffer.Buffer
	meta     *blockmeta.Cache
	resolver *schema.Resolver
}

func New(chainClient *chain.Client, wh *warehouse.Client, buf *buffer.Buffer, meta *blockmeta.Cache) *Shovel {
	return &Shovel{chain: chainClient, wh: wh, buf: buf, meta: meta, resolver: schema.NewResolver(wh)}
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

	records, err := s.chain.GetEvents(ctx, hash)
	if err != nil {
		return err
	}

	for eventIndex, rec := range records {
		derived := schema.Derive(rec.Attributes, "")
		baseName := baseTableName(rec.Module, rec.Event)
		columnNames := append(leadingColumnNames(), derivedNames(derived)...)

		tableName, err := s.resolver.TableName(ctx, baseName, columnNames)
		if err != nil {
			return err
		}

		exists, err := s.wh.TableExists(ctx, tableName)
		if err != nil {
			return err
		}
		if !exists {
			sql := schema.CreateTableSQL(s.wh.Database(), tableName, leadingColumns, derived, "timestamp")
			if err := s.wh.Execute(ctx, sql); err != nil {
				return err
			}
		}

		row := buffer.Row{blockNumber, timestamp, uint64(eventIndex)}
		for _, c := range derived {
			row = append(row, c.Value)
		}
		s.buf.Insert(ctx, tableName, row)
	}
	return nil
}

// baseTableName mirrors get_table_name's `events_shovel_{module}_{event}`
// prefix, before the `_vN` version suffix.
func baseTableName(module, event string) string {
	return fmt.Sprintf("events_shovel_%s_%s", module, event)
}

func leadingColumnNames() []string {
	names := make([]string, len(leadingColumns))
	for i, lc := range leadingColumns {
		names[i] = lc.Name
	}
	return names
}

func derivedNames(cols []schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
