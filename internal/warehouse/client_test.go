package warehouse

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"block_number", "block_number"},
		{"index", "`index`"},
		{"INDEX", "`INDEX`"},
		{"Order", "`Order`"},
		{"hotkey", "hotkey"},
	}
	for _, tc := range cases {
		if got := QuoteIdentifier(tc.in); got != tc.want {
			t.Fatalf("QuoteIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuoteLiteralEscapesQuotes(t *testing.T) {
	got := quoteLiteral("o'brien")
	want := "'o\\'brien'"
	if got != want {
		t.Fatalf("quoteLiteral = %q, want %q", got, want)
	}
}

func TestConfigFromEnvDefaultsPort(t *testing.T) {
	t.Setenv("CLICKHOUSE_PORT", "")
	t.Setenv("CLICKHOUSE_HOST", "warehouse.local")
	cfg := ConfigFromEnv()
	if cfg.Port != 8123 {
		t.Fatalf("default port = %d, want 8123", cfg.Port)
	}
	if cfg.Host != "warehouse.local" {
		t.Fatalf("host = %q, want warehouse.local", cfg.Host)
	}
}
