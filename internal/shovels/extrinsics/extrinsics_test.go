package extrinsics

import (
	"reflect"
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestExtrinsicSuccessMapCollectsSuccessAndFailure(t *testing.T) {
	records := []chain.EventRecord{
		{Module: "System", Event: "ExtrinsicSuccess", ExtrinsicIdx: 0},
		{Module: "System", Event: "ExtrinsicFailed", ExtrinsicIdx: 1},
		{Module: "Balances", Event: "Transfer", ExtrinsicIdx: 1},
	}
	got := extrinsicSuccessMap(records)
	want := map[int]bool{0: true, 1: false}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("extrinsicSuccessMap = %v, want %v", got, want)
	}
}

func TestDeriveArgColumnsScalarGetsArgPrefix(t *testing.T) {
	cols := deriveArgColumns(chain.Uint(42), "arg_amount")
	if len(cols) != 1 || cols[0].Name != "arg_amount" || cols[0].Type != "UInt64" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestDeriveArgColumnsNestedMapJoinsWithDoubleUnderscore(t *testing.T) {
	v := chain.Map([]string{"inner"}, []chain.Value{chain.Uint(7)})
	cols := deriveArgColumns(v, "arg_who")
	if len(cols) != 1 || cols[0].Name != "arg_who__inner" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestDeriveArgColumnsHomogeneousSeqCollapsesToArray(t *testing.T) {
	v := chain.Seq([]chain.Value{chain.Uint(1), chain.Uint(2), chain.Uint(3)})
	cols := deriveArgColumns(v, "arg_ids")
	if len(cols) != 1 {
		t.Fatalf("expected a single collapsed column, got %+v", cols)
	}
	if cols[0].Name != "arg_ids" || cols[0].Type != "Array(UInt64)" {
		t.Fatalf("unexpected column: %+v", cols[0])
	}
	vals, ok := cols[0].Value.([]any)
	if !ok || len(vals) != 3 {
		t.Fatalf("unexpected array value: %+v", cols[0].Value)
	}
}

func TestDeriveArgColumnsHeterogeneousSeqExplodesByTupleIndex(t *testing.T) {
	v := chain.Seq([]chain.Value{chain.Uint(1), chain.String("x")})
	cols := deriveArgColumns(v, "arg_pair")
	if len(cols) != 2 {
		t.Fatalf("expected two exploded columns, got %+v", cols)
	}
	if cols[0].Name != "arg_pair.tuple_0" || cols[1].Name != "arg_pair.tuple_1" {
		t.Fatalf("unexpected column names: %+v", cols)
	}
}

func TestDeriveArgColumnsEmptySeqProducesNoColumn(t *testing.T) {
	cols := deriveArgColumns(chain.Seq(nil), "arg_empty")
	if len(cols) != 0 {
		t.Fatalf("expected no columns for empty seq, got %+v", cols)
	}
}

func TestHomogeneousScalarTypeRejectsNestedKinds(t *testing.T) {
	seq := []chain.Value{chain.Map(nil, nil), chain.Map(nil, nil)}
	if _, ok := homogeneousScalarType(seq); ok {
		t.Fatal("expected homogeneousScalarType to reject map elements")
	}
}

func TestBaseColumnNamesOrder(t *testing.T) {
	want := []string{
		"block_number", "timestamp", "extrinsic_index", "call_function",
		"call_module", "success", "address", "nonce", "tip",
	}
	if !reflect.DeepEqual(baseColumnNames(), want) {
		t.Fatalf("baseColumnNames = %v, want %v", baseColumnNames(), want)
	}
}
