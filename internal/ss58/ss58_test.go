package ss58

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	account := make([]byte, 32)
	for i := range account {
		account[i] = byte(i)
	}
	addr, err := Encode(42, account)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	network, got, err := Decode(addr)
	if err != nil {
		t.Fatalf("Decode(%q): %v", addr, err)
	}
	if network != 42 {
		t.Fatalf("network = %d, want 42", network)
	}
	if len(got) != 32 {
		t.Fatalf("account length = %d, want 32", len(got))
	}
	for i := range got {
		if got[i] != account[i] {
			t.Fatalf("account[%d] = %d, want %d", i, got[i], account[i])
		}
	}
	if !Valid(addr) {
		t.Fatalf("expected %q to be a valid ss58 address", addr)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	if Valid("") {
		t.Fatalf("empty string should not be valid")
	}
	if Valid("not valid base58 at all $$$") {
		t.Fatalf("garbage string should not be valid")
	}
	if Valid("short") {
		t.Fatalf("undersized payload should not be valid")
	}
}
