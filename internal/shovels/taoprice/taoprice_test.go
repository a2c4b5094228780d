package taoprice

import (
	"testing"
	"time"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestBlockTimeOnJSONRPCDecodedPayload(t *testing.T) {
	tsVal := chain.ValueFromJSON(`1700000000000`)
	got := time.UnixMilli(int64(tsVal.AsUint())).UTC()
	want := time.UnixMilli(1700000000000).UTC()
	if !got.Equal(want) {
		t.Fatalf("blockTime = %v, want %v", got, want)
	}
}

func TestDueUsesDailyCadenceBeforeCutover(t *testing.T) {
	if !due(blocksPerDay * 3) {
		t.Fatal("expected due on a daily boundary before cutover")
	}
	if due(blocksPerDay*3 + 1) {
		t.Fatal("expected not due off a daily boundary before cutover")
	}
}

func TestDueUsesFineCadenceAfterCutover(t *testing.T) {
	first := uint64(dailyCadenceEndBlock/fineCadenceBlocks+1) * fineCadenceBlocks
	if !due(first) {
		t.Fatalf("expected due at %d (first fine-cadence boundary after cutover)", first)
	}
	if due(first + 1) {
		t.Fatal("expected not due one block past a fine-cadence boundary")
	}
}
