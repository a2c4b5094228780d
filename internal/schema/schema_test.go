package schema

import (
	"reflect"
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestDeriveScalar(t *testing.T) {
	cols := Derive(chain.Uint(42), "")
	want := []Column{{Name: "value", Type: "UInt64", Value: uint64(42)}}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveMapNestsWithDoubleUnderscore(t *testing.T) {
	v := chain.Map(
		[]string{"who", "amount"},
		[]chain.Value{chain.String("5F...xyz"), chain.Uint(100)},
	)
	cols := Derive(v, "")
	want := []Column{
		{Name: "who", Type: "String", Value: "5F...xyz"},
		{Name: "amount", Type: "UInt64", Value: uint64(100)},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveNestedMapJoinsKeysWithDoubleUnderscore(t *testing.T) {
	inner := chain.Map([]string{"free", "reserved"}, []chain.Value{chain.Uint(1), chain.Uint(2)})
	outer := chain.Map([]string{"balance"}, []chain.Value{inner})
	cols := Derive(outer, "")
	want := []Column{
		{Name: "balance__free", Type: "UInt64", Value: uint64(1)},
		{Name: "balance__reserved", Type: "UInt64", Value: uint64(2)},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveSeqUsesTupleIndices(t *testing.T) {
	v := chain.Seq([]chain.Value{chain.String("a"), chain.Int(-1)})
	cols := Derive(v, "args")
	want := []Column{
		{Name: "args.tuple_0", Type: "String", Value: "a"},
		{Name: "args.tuple_1", Type: "Int64", Value: int64(-1)},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveSeqAtTopLevelOmitsLeadingDot(t *testing.T) {
	v := chain.Seq([]chain.Value{chain.Bool(true)})
	cols := Derive(v, "")
	want := []Column{{Name: "tuple_0", Type: "Bool", Value: true}}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveNullProducesNoColumn(t *testing.T) {
	v := chain.Map([]string{"a", "b"}, []chain.Value{chain.Null(), chain.Int(1)})
	cols := Derive(v, "")
	want := []Column{{Name: "b", Type: "Int64", Value: int64(1)}}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveEmptySeqUsesVecHint(t *testing.T) {
	v := chain.EmptySeq("u32")
	cols := Derive(v, "items")
	want := []Column{{Name: "items", Type: "Array(UInt32)", Value: nil}}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestDeriveEmptySeqWithoutHintProducesNoColumn(t *testing.T) {
	v := chain.EmptySeq("")
	cols := Derive(v, "items")
	if cols != nil {
		t.Fatalf("Derive = %+v, want nil", cols)
	}
}

func TestDeriveBytesEncodesAsHexString(t *testing.T) {
	cols := Derive(chain.BytesValue([]byte{0xde, 0xad}), "payload")
	want := []Column{{Name: "payload", Type: "String", Value: "0xdead"}}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("Derive = %+v, want %+v", cols, want)
	}
}

func TestColumnListsEqual(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, true},
		{[]string{"a", "b"}, []string{"b", "a"}, false},
		{[]string{"a"}, []string{"a", "b"}, false},
		{nil, nil, true},
	}
	for _, tc := range cases {
		if got := columnListsEqual(tc.a, tc.b); got != tc.want {
			t.Fatalf("columnListsEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCreateTableSQLIncludesSS58ColumnsInOrderBy(t *testing.T) {
	leading := []LeadingColumn{
		{Name: "block_number", Type: "UInt64 CODEC(Delta, ZSTD)"},
		{Name: "timestamp", Type: "DateTime CODEC(Delta, ZSTD)"},
		{Name: "event_index", Type: "UInt64 CODEC(Delta(1), ZSTD)"},
	}
	derived := []Column{
		{Name: "who", Type: "String", Value: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"},
		{Name: "amount", Type: "UInt64", Value: uint64(100)},
	}
	sql := CreateTableSQL("shovels", "events_shovel_balances_transfer_v0", leading, derived, "timestamp")
	if !contains(sql, "ORDER BY (block_number, timestamp, event_index, who)") {
		t.Fatalf("sql missing expected ORDER BY: %s", sql)
	}
	if !contains(sql, "PARTITION BY toYYYYMM(timestamp)") {
		t.Fatalf("sql missing PARTITION BY: %s", sql)
	}
	if !contains(sql, "ENGINE = ReplacingMergeTree()") {
		t.Fatalf("sql missing engine: %s", sql)
	}
}

func TestCacheKeyDistinguishesBaseNameAndColumns(t *testing.T) {
	a := cacheKey("events_shovel_balances_transfer", []string{"block_number", "who"})
	b := cacheKey("events_shovel_balances_transfer", []string{"block_number", "amount"})
	c := cacheKey("events_shovel_balances_withdraw", []string{"block_number", "who"})
	if a == b {
		t.Fatalf("cacheKey collided across differing columns: %q", a)
	}
	if a == c {
		t.Fatalf("cacheKey collided across differing baseName: %q", a)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
