package events

import (
	"reflect"
	"testing"

	"github.com/substrate-warehouse/shovels/internal/schema"
)

func TestBaseTableNameFormat(t *testing.T) {
	got := baseTableName("balances", "transfer")
	want := "events_shovel_balances_transfer"
	if got != want {
		t.Fatalf("baseTableName = %q, want %q", got, want)
	}
}

func TestLeadingColumnNames(t *testing.T) {
	got := leadingColumnNames()
	want := []string{"block_number", "timestamp", "event_index"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("leadingColumnNames = %v, want %v", got, want)
	}
}

func TestDerivedNames(t *testing.T) {
	cols := []schema.Column{{Name: "who"}, {Name: "amount"}}
	got := derivedNames(cols)
	want := []string{"who", "amount"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("derivedNames = %v, want %v", got, want)
	}
}
