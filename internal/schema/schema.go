// Package schema derives ClickHouse column definitions and versioned table
// names from a runtime chain.Value payload, the way the original scraper
// service grew one table per distinct event/extrinsic/storage-item shape
// instead of asking operators to hand-maintain a migration for every pallet.
//
// Grounded on scraper_service/shovel_events/utils.py's
// generate_column_definitions/get_table_name/create_clickhouse_table (exact
// "__"-joined nesting, ".tuple_N" indices, v0..v49 fingerprint versioning,
// SS58-aware ORDER BY), generalized from chain.Value's tagged union instead
// of Python's dynamic dict/tuple/scalar shapes and from the teacher's
// internal/ingester/block_fetcher.go flattenCadenceValue recursive dispatch.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/ss58"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

// Column is one derived column: its name, ClickHouse type, and the value to
// insert for the row currently being processed.
type Column struct {
	Name  string
	Type  string
	Value any
}

// Derive recursively walks v, producing one Column per scalar leaf. Map keys
// nest with "__"; sequence elements nest with ".tuple_N", matching the
// original tuple-index convention. A Null leaf produces no column, matching
// get_column_type's None case. parentKey is the empty string at the top
// level; leaves at the top level are named "value".
func Derive(v chain.Value, parentKey string) []Column {
	switch v.Kind {
	case chain.KindMap:
		var cols []Column
		for i, key := range v.MapKeys {
			childKey := key
			if parentKey != "" {
				childKey = parentKey + "__" + key
			}
			cols = append(cols, Derive(v.MapVals[i], childKey)...)
		}
		return cols
	case chain.KindSeq:
		if len(v.Seq) == 0 {
			if v.VecHint == "" {
				return nil
			}
			name := parentKey
			if name == "" {
				name = "value"
			}
			return []Column{{Name: name, Type: "Array(" + vecHintColumnType(v.VecHint) + ")", Value: nil}}
		}
		var cols []Column
		for i, item := range v.Seq {
			childKey := fmt.Sprintf("tuple_%d", i)
			if parentKey != "" {
				childKey = parentKey + "." + childKey
			}
			cols = append(cols, Derive(item, childKey)...)
		}
		return cols
	case chain.KindNull:
		return nil
	default:
		name := parentKey
		if name == "" {
			name = "value"
		}
		typ, val := columnTypeAndValue(v)
		if typ == "" {
			return nil
		}
		return []Column{{Name: name, Type: typ, Value: val}}
	}
}

// vecHintColumnType maps a storage/call type's declared element width (as
// recorded in chain.Value.VecHint for an empty Array) to a ClickHouse
// element type, so an empty list still derives a concrete Array(...) column
// instead of being dropped for lack of any element to inspect.
func vecHintColumnType(hint string) string {
	switch hint {
	case "u8", "u16", "u32", "u64":
		return "UInt" + hint[1:]
	case "i8", "i16", "i32", "i64":
		return "Int" + hint[1:]
	default:
		return "String"
	}
}

func columnTypeAndValue(v chain.Value) (string, any) {
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

// LeadingColumn is a fixed, non-derived column every table in a given shovel
// family carries (block_number, timestamp, event_index, and so on).
type LeadingColumn struct {
	Name string
	Type string
}

// CreateTableSQL builds the CREATE TABLE IF NOT EXISTS statement for
// tableName: leading fixed columns followed by the derived columns, a
// ReplacingMergeTree engine, monthly partitioning on the timestamp column
// (partitionColumn), and an ORDER BY of the leading columns plus any derived
// column whose value is a valid SS58 address — matching
// create_clickhouse_table's is_valid_ss58_address check.
func CreateTableSQL(database, tableName string, leading []LeadingColumn, derived []Column, partitionColumn string) string {
	orderBy := make([]string, 0, len(leading)+1)
	for _, lc := range leading {
		orderBy = append(orderBy, lc.Name)
	}
	for _, c := range derived {
		if s, ok := c.Value.(string); ok && ss58.Valid(s) {
			orderBy = append(orderBy, c.Name)
		}
	}
	return CreateTableSQLWithOrder(database, tableName, leading, derived, partitionColumn, orderBy)
}

// CreateTableSQLWithOrder is CreateTableSQL with an explicitly supplied
// ORDER BY column list instead of the SS58-auto-detection CreateTableSQL
// applies, for table families (like extrinsics) whose original always
// orders on a fixed column set regardless of any address-shaped value.
func CreateTableSQLWithOrder(database, tableName string, leading []LeadingColumn, derived []Column, partitionColumn string, orderBy []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s.%s (\n", warehouse.QuoteIdentifier(database), warehouse.QuoteIdentifier(tableName))

	defs := make([]string, 0, len(leading)+len(derived))
	for _, lc := range leading {
		defs = append(defs, fmt.Sprintf("%s %s", warehouse.QuoteIdentifier(lc.Name), lc.Type))
	}
	for _, c := range derived {
		defs = append(defs, fmt.Sprintf("%s %s", warehouse.QuoteIdentifier(c.Name), c.Type))
	}
	b.WriteString("    " + strings.Join(defs, ",\n    ") + "\n")
	b.WriteString(") ENGINE = ReplacingMergeTree()\n")

	quoted := make([]string, len(orderBy))
	for i, name := range orderBy {
		quoted[i] = warehouse.QuoteIdentifier(name)
	}
	fmt.Fprintf(&b, "ORDER BY (%s)\n", strings.Join(quoted, ", "))
	if partitionColumn != "" {
		fmt.Fprintf(&b, "PARTITION BY toYYYYMM(%s)\n", warehouse.QuoteIdentifier(partitionColumn))
	}
	return b.String()
}

// maxVersions bounds the v0..v49 search, matching get_table_name's
// MAX_VERSIONS.
const maxVersions = 50

// Resolver caches resolved (baseName, columns) -> table name mappings for a
// single shovel's lifetime, so a shape emitted many times per block (a
// common event or extrinsic) pays the DESCRIBE TABLE/TableExists round trip
// once instead of on every occurrence (spec.md §4.F).
//
// Grounded on internal/blockmeta.Cache's RWMutex-guarded map shape,
// generalized from a block-number key to a shape-fingerprint key.
type Resolver struct {
	wh *warehouse.Client

	mu    sync.RWMutex
	cache map[string]string
}

func NewResolver(wh *warehouse.Client) *Resolver {
	return &Resolver{wh: wh, cache: make(map[string]string)}
}

// TableName returns the existing or newly-to-be-created versioned table
// name for baseName given the exact ordered list of column names this row's
// shape would produce (leading columns first), consulting the resolver's
// cache before falling back to the warehouse.
func (r *Resolver) TableName(ctx context.Context, baseName string, columns []string) (string, error) {
	key := cacheKey(baseName, columns)

	r.mu.RLock()
	name, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := resolveTableName(ctx, r.wh, baseName, columns)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = name
	r.mu.Unlock()
	return name, nil
}

func cacheKey(baseName string, columns []string) string {
	return baseName + "\x00" + strings.Join(columns, "\x00")
}

// resolveTableName walks v0, v1, ... up to v49, reusing the first version
// whose DESCRIBE TABLE column list matches exactly, or the first version
// that doesn't exist yet.
func resolveTableName(ctx context.Context, wh *warehouse.Client, baseName string, columns []string) (string, error) {
	for version := 0; version < maxVersions; version++ {
		name := fmt.Sprintf("%s_v%d", baseName, version)
		exists, err := wh.TableExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
		existing, err := wh.DescribeTable(ctx, name)
		if err != nil {
			return "", err
		}
		if columnListsEqual(existing, columns) {
			return name, nil
		}
	}
	return "", fmt.Errorf("schema: max versions (%d) reached for %s", maxVersions, baseName)
}

func columnListsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
