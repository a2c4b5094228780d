// Package extrinsics buffers one row per block extrinsic: a fixed set of
// base columns (call identity, signer, success) plus argument columns
// derived at runtime from the call's arguments, in a table versioned the
// same way internal/schema versions event tables.
//
// Grounded on original_source/shovel_extrinsics/{main,utils}.py: the
// ExtrinsicSuccess/ExtrinsicFailed success map, the base column set, the
// "arg_"-prefixed argument derivation (recursing through nested maps and
// tuples but collapsing a homogeneous sequence into a single Array(...)
// column instead of exploding it per index -- unlike event attributes,
// extrinsic call arguments regularly carry real Vec<T> arguments, so this
// package derives its own argument columns instead of reusing
// internal/schema's tuple-indexed Derive, which events.go uses for
// payloads that are never genuine homogeneous vectors).
package extrinsics

import (
	"context"
	"fmt"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/schema"
	"github.com/substrate-warehouse/shovels/internal/shovelerr"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const ShovelName = "extrinsics"

var baseColumns = []schema.LeadingColumn{
	{Name: "block_number", Type: "UInt64"},
	{Name: "timestamp", Type: "DateTime"},
	{Name: "extrinsic_index", Type: "UInt64"},
	{Name: "call_function", Type: "String"},
	{Name: "call_module", Type: "String"},
	{Name: "success", Type: "Bool"},
	{Name: "address", Type: "Nullable(String)"},
	{Name: "nonce", Type: "Nullable(UInt64)"},
	{Name: "tip", Type: "Nullable(UInt64)"},
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

	exts, err := s.chain.GetExtrinsics(ctx, blockNumber)
	if err != nil {
		return err
	}
	records, err := s.chain.GetEvents(ctx, hash)
	if err != nil {
		return err
	}
	successMap := extrinsicSuccessMap(records)

	for _, ext := range exts {
		success, ok := successMap[ext.Index]
		if !ok {
			return shovelerr.NewShovelProcessingError(
				ShovelName, blockNumber,
				fmt.Errorf("extrinsic %d at block %d has no System.ExtrinsicSuccess/Failed event", ext.Index, blockNumber),
			)
		}

		var argCols []schema.Column
		for _, arg := range ext.Call.Args {
			argCols = append(argCols, deriveArgColumns(arg.Value, "arg_"+arg.Name)...)
		}

		columnNames := append(baseColumnNames(), argNames(argCols)...)
		baseName := fmt.Sprintf("shovel_extrinsics_%s_%s", ext.Call.Module, ext.Call.Function)
		tableName, err := s.resolver.TableName(ctx, baseName, columnNames)
		if err != nil {
			return err
		}

		exists, err := s.wh.TableExists(ctx, tableName)
		if err != nil {
			return err
		}
		if !exists {
			sql := createTableSQL(s.wh.Database(), tableName, argCols)
			if err := s.wh.Execute(ctx, sql); err != nil {
				return err
			}
		}

		var address, nonce, tip any
		if ext.Address != "" {
			address = ext.Address
		}
		if ext.Nonce != nil {
			nonce = *ext.Nonce
		}
		if ext.Tip != nil {
			tip = *ext.Tip
		}

		row := buffer.Row{blockNumber, timestamp, uint64(ext.Index), ext.Call.Function, ext.Call.Module, success, address, nonce, tip}
		for _, c := range argCols {
			row = append(row, c.Value)
		}
		s.buf.Insert(ctx, tableName, row)
	}

	if len(successMap) != len(exts) {
		return shovelerr.NewShovelProcessingError(
			ShovelName, blockNumber,
			fmt.Errorf("expected %d extrinsics, found %d", len(successMap), len(exts)),
		)
	}
	return nil
}

// extrinsicSuccessMap builds extrinsic_idx -> succeeded from
// System.ExtrinsicSuccess/ExtrinsicFailed events, matching the original's
// filter-and-collect loop.
func extrinsicSuccessMap(records []chain.EventRecord) map[int]bool {
	m := make(map[int]bool)
	for _, r := range records {
		if r.Module != "System" {
			continue
		}
		switch r.Event {
		case "ExtrinsicSuccess":
			m[r.ExtrinsicIdx] = true
		case "ExtrinsicFailed":
			m[r.ExtrinsicIdx] = false
		}
	}
	return m
}

// deriveArgColumns recurses through a call argument the same way
// internal/schema.Derive does for maps and tuples, but collapses a
// homogeneous, non-empty sequence into a single Array(...) column instead
// of exploding it per index, since extrinsic call arguments frequently
// carry genuine SCALE Vec<T> values.
func deriveArgColumns(v chain.Value, parentKey string) []schema.Column {
	switch v.Kind {
	case chain.KindMap:
		var cols []schema.Column
		for i, key := range v.MapKeys {
			cols = append(cols, deriveArgColumns(v.MapVals[i], parentKey+"__"+key)...)
		}
		return cols
	case chain.KindSeq:
		if len(v.Seq) == 0 {
			return nil
		}
		if elemType, ok := homogeneousScalarType(v.Seq); ok {
			return []schema.Column{{Name: parentKey, Type: "Array(" + elemType + ")", Value: arrayValues(v.Seq)}}
		}
		var cols []schema.Column
		for i, item := range v.Seq {
			cols = append(cols, deriveArgColumns(item, fmt.Sprintf("%s.tuple_%d", parentKey, i))...)
		}
		return cols
	case chain.KindNull:
		return nil
	default:
		typ, val := scalarColumnType(v)
		if typ == "" {
			return nil
		}
		return []schema.Column{{Name: parentKey, Type: typ, Value: val}}
	}
}

// homogeneousScalarType reports the shared ClickHouse scalar type of seq's
// elements when every element is the same non-container kind, the signal
// that this sequence is a SCALE Vec<T> rather than a tuple.
func homogeneousScalarType(seq []chain.Value) (string, bool) {
	kind := seq[0].Kind
	if kind == chain.KindMap || kind == chain.KindSeq {
		return "", false
	}
	for _, v := range seq[1:] {
		if v.Kind != kind {
			return "", false
		}
	}
	typ, _ := scalarColumnType(seq[0])
	return typ, typ != ""
}

func arrayValues(seq []chain.Value) []any {
	vals := make([]any, len(seq))
	for i, v := range seq {
		_, vals[i] = scalarColumnType(v)
	}
	return vals
}

func scalarColumnType(v chain.Value) (string, any) {
	switch v.Kind {
	case chain.KindString:
		return "String", v.Str
	case chain.KindInt:
		return "Int64", v.Int
	case chain.KindUint:
		return "UInt64", v.Uint
	case chain.KindFloat:
		return "Float64", v.Float
	case chain.KindBool:
		return "Bool", v.Bool
	case chain.KindBytes:
		return "String", fmt.Sprintf("0x%x", v.Bytes)
	default:
		return "", nil
	}
}

func baseColumnNames() []string {
	names := make([]string, len(baseColumns))
	for i, c := range baseColumns {
		names[i] = c.Name
	}
	return names
}

func argNames(cols []schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// createTableSQL assembles the CREATE TABLE statement with the original's
// fixed ORDER BY (call_module, call_function, timestamp, extrinsic_index),
// not the SS58-aware ORDER BY internal/schema uses for event tables.
func createTableSQL(database, tableName string, argCols []schema.Column) string {
	return schema.CreateTableSQLWithOrder(database, tableName, baseColumns, argCols,
		"timestamp", []string{"call_module", "call_function", "timestamp", "extrinsic_index"})
}
