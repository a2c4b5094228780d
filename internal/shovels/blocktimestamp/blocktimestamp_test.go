package blocktimestamp

import (
	"strings"
	"testing"
	"time"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestCreateTableSQLShape(t *testing.T) {
	sql := CreateTableSQL("shovels")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS shovels.block_timestamps",
		"ORDER BY (number)",
		"PARTITION BY toYYYYMM(timestamp)",
		"ENGINE = ReplacingMergeTree()",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("sql missing %q:\n%s", want, sql)
		}
	}
}

func TestTimestampNowDecodesThroughJSONRPCPath(t *testing.T) {
	ts := chain.ValueFromJSON(`1700000000000`)
	got := time.UnixMilli(int64(ts.AsUint())).UTC()
	want := time.UnixMilli(1700000000000).UTC()
	if !got.Equal(want) {
		t.Fatalf("decoded timestamp = %v, want %v", got, want)
	}
}

func TestNameAndTable(t *testing.T) {
	if ShovelName != "block_timestamps" {
		t.Fatalf("ShovelName = %q", ShovelName)
	}
	if TableName != "block_timestamps" {
		t.Fatalf("TableName = %q", TableName)
	}
}
