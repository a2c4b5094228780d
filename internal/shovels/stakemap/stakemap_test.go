package stakemap

import (
	"reflect"
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestPendingEmissionJustPaidOut(t *testing.T) {
	cases := []struct {
		previous, current uint64
		want              bool
	}{
		{previous: 100, current: 0, want: true},
		{previous: 0, current: 0, want: false},
		{previous: 100, current: 50, want: false},
		{previous: 0, current: 50, want: false},
	}
	for _, c := range cases {
		if got := pendingEmissionJustPaidOut(c.previous, c.current); got != c.want {
			t.Errorf("pendingEmissionJustPaidOut(%d, %d) = %v, want %v", c.previous, c.current, got, c.want)
		}
	}
}

func TestNetuidAndPendingEmissionOnJSONRPCDecodedPayload(t *testing.T) {
	netuids := chain.ValueFromJSON(`[1, 2, 3]`)
	var got []uint64
	for _, v := range netuids.Seq {
		got = append(got, v.AsUint())
	}
	if !reflect.DeepEqual(got, []uint64{1, 2, 3}) {
		t.Fatalf("netuids = %v, want [1 2 3]", got)
	}

	pending := chain.ValueFromJSON(`5000000000`)
	if current := pending.AsUint(); current != 5000000000 {
		t.Fatalf("pending.AsUint() = %d, want 5000000000", current)
	}
}

func TestStakeEventHotkeysPrefersNamedAttribute(t *testing.T) {
	records := []chain.EventRecord{
		{
			Module: "SubtensorModule",
			Event:  "StakeAdded",
			Attributes: chain.Map(
				[]string{"coldkey", "hotkey", "amount"},
				[]chain.Value{chain.String("cold1"), chain.String("hot1"), chain.Uint(10)},
			),
		},
		{Module: "Balances", Event: "Transfer", Attributes: chain.Null()},
	}
	got := stakeEventHotkeys(records)
	want := []string{"hot1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stakeEventHotkeys = %v, want %v", got, want)
	}
}

func TestStakeEventHotkeysFallsBackToPositionalTuple(t *testing.T) {
	records := []chain.EventRecord{
		{
			Module:     "SubtensorModule",
			Event:      "StakeRemoved",
			Attributes: chain.Seq([]chain.Value{chain.String("cold1"), chain.String("hot1"), chain.Uint(5), chain.Uint(10)}),
		},
	}
	got := stakeEventHotkeys(records)
	want := []string{"hot1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stakeEventHotkeys = %v, want %v", got, want)
	}
}

func TestStakeEventHotkeysIgnoresOtherEvents(t *testing.T) {
	records := []chain.EventRecord{
		{Module: "SubtensorModule", Event: "NeuronRegistered", Attributes: chain.Null()},
	}
	if got := stakeEventHotkeys(records); len(got) != 0 {
		t.Fatalf("expected no hotkeys, got %v", got)
	}
}
