package dailystake

import (
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestHotkeyColdkeyExtractsPair(t *testing.T) {
	hotkey, coldkey, ok := hotkeyColdkey([]chain.Value{chain.String("hk"), chain.String("ck")})
	if !ok || hotkey != "hk" || coldkey != "ck" {
		t.Fatalf("hotkeyColdkey = %q, %q, %v", hotkey, coldkey, ok)
	}
}

func TestHotkeyColdkeyRejectsShortKey(t *testing.T) {
	if _, _, ok := hotkeyColdkey([]chain.Value{chain.String("hk")}); ok {
		t.Fatal("expected ok=false for short key")
	}
}

func TestStakeValueOnJSONRPCDecodedPayload(t *testing.T) {
	stake := chain.ValueFromJSON(`123456789000`)
	if got := stake.AsUint(); got != 123456789000 {
		t.Fatalf("stake.AsUint() = %d, want 123456789000", got)
	}
}

func TestProcessBlockSkipsNonIntervalBlocks(t *testing.T) {
	s := &Shovel{skipInterval: 7200}
	if err := s.ProcessBlock(nil, 1); err != nil {
		t.Fatalf("ProcessBlock = %v, want nil (skip)", err)
	}
}
