package validators

import (
	"math"
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestApyFromDailyReturn(t *testing.T) {
	apy := apyFromDailyReturn(0)
	if apy != 0 {
		t.Fatalf("zero daily return should compound to 0%% APY, got %v", apy)
	}
	apy = apyFromDailyReturn(10) // 10 per 1000, i.e. a 0.01 daily return
	if apy <= 0 {
		t.Fatalf("positive daily return should compound to positive APY, got %v", apy)
	}
}

func TestDecodeAccountIDString(t *testing.T) {
	if got := decodeAccountID(chain.String("5Fhk...")); got != "5Fhk..." {
		t.Fatalf("decodeAccountID(string) = %q", got)
	}
}

func TestDecodeAccountIDUnsupportedKind(t *testing.T) {
	if got := decodeAccountID(chain.Uint(1)); got != "" {
		t.Fatalf("decodeAccountID(uint) = %q, want empty", got)
	}
}

func TestDecodeTextBytes(t *testing.T) {
	if got := decodeText(chain.BytesValue([]byte("hello"))); got != "hello" {
		t.Fatalf("decodeText(bytes) = %q", got)
	}
}

func TestDecodeDelegates(t *testing.T) {
	v := chain.Seq([]chain.Value{
		chain.Map(
			[]string{"delegate_ss58", "owner_ss58", "nominators", "total_daily_return", "return_per_1000", "registrations", "validator_permits"},
			[]chain.Value{
				chain.String("validator1"),
				chain.String("owner1"),
				chain.Seq([]chain.Value{chain.String("n1"), chain.String("n2")}),
				chain.Float(1.5),
				chain.Uint(20),
				chain.Seq([]chain.Value{chain.Uint(1), chain.Uint(2)}),
				chain.Seq([]chain.Value{chain.Uint(1)}),
			},
		),
	})
	got := decodeDelegates(v)
	if len(got) != 1 {
		t.Fatalf("expected 1 delegate, got %d", len(got))
	}
	d := got[0]
	if d.address != "validator1" || d.owner != "owner1" {
		t.Fatalf("unexpected delegate identity: %+v", d)
	}
	if d.nominators != 2 || d.dailyReturn != 1.5 || d.returnPer1000 != 20 {
		t.Fatalf("unexpected delegate stats: %+v", d)
	}
	if len(d.registrations) != 2 || len(d.validatorPerms) != 1 {
		t.Fatalf("unexpected delegate arrays: %+v", d)
	}
}

func TestDecodeDelegatesOnJSONRPCDecodedPayload(t *testing.T) {
	v := chain.ValueFromJSON(`[{
		"delegate_ss58": "validator1",
		"owner_ss58": "owner1",
		"nominators": ["n1", "n2"],
		"total_daily_return": 1.5,
		"return_per_1000": 20,
		"registrations": [1, 2],
		"validator_permits": [1]
	}]`)
	got := decodeDelegates(v)
	if len(got) != 1 {
		t.Fatalf("expected 1 delegate, got %d", len(got))
	}
	d := got[0]
	if d.address != "validator1" || d.owner != "owner1" {
		t.Fatalf("unexpected delegate identity decoded from JSON-RPC payload: %+v", d)
	}
	if d.nominators != 2 || d.dailyReturn != 1.5 || d.returnPer1000 != 20 {
		t.Fatalf("unexpected delegate stats decoded from JSON-RPC payload: %+v", d)
	}
	if len(d.registrations) != 2 || d.registrations[0] != 1 || d.registrations[1] != 2 {
		t.Fatalf("unexpected registrations decoded from JSON-RPC payload: %+v", d.registrations)
	}
}

func TestHotkeyAlphaValueAsFloatOnJSONRPCDecodedPayload(t *testing.T) {
	v := chain.ValueFromJSON(`12345`)
	if got := valueAsFloat(v); got != 12345 {
		t.Fatalf("valueAsFloat(decoded JSON-RPC int) = %v, want 12345", got)
	}
}

func TestRound3(t *testing.T) {
	got := round3(1.23456)
	if math.Abs(got-1.235) > 1e-9 {
		t.Fatalf("round3(1.23456) = %v, want 1.235", got)
	}
}
