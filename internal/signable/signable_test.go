package signable

import "testing"

// TestIntentHashRoundTrip tests String and ParseIntentHash agree.
func TestIntentHashRoundTrip(t *testing.T) {
	h := NewIntentHash([]byte("intent"))

	got, err := ParseIntentHash(h.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got != h {
		t.Fatalf("round trip mismatch: %s != %s", got, h)
	}

	if h.Digest() != [32]byte(h) {
		t.Error("digest should be the hash itself")
	}
}

// TestParseIntentHashErrors tests malformed ids.
func TestParseIntentHashErrors(t *testing.T) {
	cases := []string{
		"",
		"tx_00",
		"txid_zz",
		"txid_0011",
	}

	for _, c := range cases {
		if _, err := ParseIntentHash(c); err == nil {
			t.Errorf("%q should not parse", c)
		}
	}
}
