// Package signable defines the identity of payloads the signing core collects
// signatures for. The core never looks inside a payload; it only needs a
// comparable id and the digest signers sign.
package signable

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ID is the constraint satisfied by signable identifiers.
type ID interface {
	comparable

	// Digest returns the 32-byte hash factor sources sign.
	Digest() [32]byte

	// String returns a printable form for logs.
	String() string
}

// IntentHash identifies a transaction intent.
type IntentHash [32]byte

// NewIntentHash hashes a compiled transaction intent.
func NewIntentHash(compiled []byte) IntentHash {
	return IntentHash(blake3.Sum256(compiled))
}

// Digest returns the hash itself.
func (h IntentHash) Digest() [32]byte {
	return h
}

// String returns "txid_" followed by the hex hash.
func (h IntentHash) String() string {
	return "txid_" + hex.EncodeToString(h[:])
}

// ParseIntentHash parses the form produced by String.
func ParseIntentHash(s string) (IntentHash, error) {
	var h IntentHash

	if err := parsePrefixed(s, "txid_", h[:]); err != nil {
		return IntentHash{}, err
	}

	return h, nil
}

// parsePrefixed decodes a prefixed hex string into out.
func parsePrefixed(s, prefix string, out []byte) error {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return fmt.Errorf("signable id %q: missing prefix %q", s, prefix)
	}

	raw, err := hex.DecodeString(s[len(prefix):])
	if err != nil {
		return fmt.Errorf("signable id %q:\n%w", s, err)
	}

	if len(raw) != len(out) {
		return fmt.Errorf("signable id %q: got %d bytes, want %d", s, len(raw), len(out))
	}

	copy(out, raw)

	return nil
}
