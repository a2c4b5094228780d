package dailybalance

import (
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestAccountBalancesUsesFrozenFieldWhenPresent(t *testing.T) {
	account := chain.Map([]string{"data"}, []chain.Value{
		chain.Map([]string{"free", "reserved", "frozen"}, []chain.Value{
			chain.Uint(10), chain.Uint(2), chain.Uint(1),
		}),
	})
	free, reserved, frozen := accountBalances(account)
	if free != 10 || reserved != 2 || frozen != 1 {
		t.Fatalf("accountBalances = %d,%d,%d", free, reserved, frozen)
	}
}

func TestAccountBalancesFallsBackToMiscAndFeeFrozen(t *testing.T) {
	account := chain.Map([]string{"data"}, []chain.Value{
		chain.Map([]string{"free", "reserved", "misc_frozen", "fee_frozen"}, []chain.Value{
			chain.Uint(10), chain.Uint(2), chain.Uint(3), chain.Uint(4),
		}),
	})
	_, _, frozen := accountBalances(account)
	if frozen != 7 {
		t.Fatalf("frozen = %d, want 7", frozen)
	}
}

func TestAccountBalancesOnJSONRPCDecodedPayload(t *testing.T) {
	account := chain.ValueFromJSON(`{"data":{"free":100000000000,"reserved":20000000000,"frozen":5000000000}}`)
	free, reserved, frozen := accountBalances(account)
	if free != 100000000000 || reserved != 20000000000 || frozen != 5000000000 {
		t.Fatalf("accountBalances from decoded JSON-RPC payload = %d,%d,%d", free, reserved, frozen)
	}
}

func TestProcessBlockSkipsNonIntervalBlocks(t *testing.T) {
	s := &Shovel{skipInterval: 7200}
	// ProcessBlock must return nil without touching chain/buf when the
	// block isn't on the interval boundary; nil chain/buf fields would
	// panic otherwise, so this also proves the early return.
	if err := s.ProcessBlock(nil, 7201); err != nil {
		t.Fatalf("ProcessBlock = %v, want nil (skip)", err)
	}
}
