package alphatotao

import (
	"testing"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func TestExchangeRateDividesTaoByAlphaIn(t *testing.T) {
	got := exchangeRate(100, 25)
	if got != 4 {
		t.Fatalf("exchangeRate(100, 25) = %v, want 4", got)
	}
}

func TestExchangeRateZeroWhenAlphaInZero(t *testing.T) {
	if got := exchangeRate(100, 0); got != 0 {
		t.Fatalf("exchangeRate(100, 0) = %v, want 0", got)
	}
}

func TestExchangeRateOnJSONRPCDecodedValues(t *testing.T) {
	tao := chain.ValueFromJSON(`100000000000`)
	alphaIn := chain.ValueFromJSON(`25000000000`)
	got := exchangeRate(tao.AsUint(), alphaIn.AsUint())
	if got != 4 {
		t.Fatalf("exchangeRate from decoded JSON-RPC values = %v, want 4", got)
	}
}

func TestCreateTableSQLOrdersByBlockAndNetuid(t *testing.T) {
	sql := CreateTableSQL("shovels")
	if want := "ORDER BY (block_number, netuid)"; !contains(sql, want) {
		t.Fatalf("sql missing %q:\n%s", want, sql)
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
