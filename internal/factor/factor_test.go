package factor

import (
	"encoding/json"
	"testing"
)

// TestSourceIDDeterministic tests that the same key material yields the same id.
func TestSourceIDDeterministic(t *testing.T) {
	a := NewSourceID(KindLedger, []byte("root key"))
	b := NewSourceID(KindLedger, []byte("root key"))

	if a != b {
		t.Fatal("same key material should produce same id")
	}

	c := NewSourceID(KindArculus, []byte("root key"))
	if a == c {
		t.Fatal("kind should be part of the id")
	}
}

// TestSourceIDRoundTrip tests Hex and ParseSourceID.
func TestSourceIDRoundTrip(t *testing.T) {
	id := NewSourceID(KindSecurityQuestions, []byte("answers"))

	parsed, err := ParseSourceID(id.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if parsed != id {
		t.Errorf("got %v, want %v", parsed, id)
	}
}

// TestParseSourceIDErrors tests malformed ids.
func TestParseSourceIDErrors(t *testing.T) {
	bad := []string{
		"",
		"device",
		"toaster:00",
		"device:zz",
		"device:0011",
	}

	for _, s := range bad {
		if _, err := ParseSourceID(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

// TestSigningOrder tests that device keys are dispatched last.
func TestSigningOrder(t *testing.T) {
	if KindLedger.SigningOrder() >= KindDevice.SigningOrder() {
		t.Error("ledger should come before device")
	}

	for _, k := range AllKinds {
		if k.SigningOrder() > KindDevice.SigningOrder() {
			t.Errorf("%s should not come after device", k)
		}
	}
}

// TestKindText tests kind text marshalling through JSON.
func TestKindText(t *testing.T) {
	data, err := json.Marshal(map[string]Kind{"k": KindOffDeviceMnemonic})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(data) != `{"k":"off_device_mnemonic"}` {
		t.Errorf("got %s", data)
	}

	var out map[string]Kind
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out["k"] != KindOffDeviceMnemonic {
		t.Errorf("got %v", out["k"])
	}
}

// TestInstanceEqual tests instance equality on key, path and source.
func TestInstanceEqual(t *testing.T) {
	src := NewSourceID(KindDevice, []byte("device"))
	a := HDInstance{Source: src, PublicKey: PublicKey{Curve: CurveEd25519, Bytes: []byte{1, 2}}, Path: "m/0"}
	b := a
	b.PublicKey.Bytes = []byte{1, 2}

	if !a.Equal(b) {
		t.Error("instances with equal fields should be equal")
	}

	b.Path = "m/1"
	if a.Equal(b) {
		t.Error("different paths should not be equal")
	}

	owned := OwnedInstance{Owner: "account_1", Instance: a}
	other := OwnedInstance{Owner: "account_2", Instance: a}

	if owned.Equal(other) {
		t.Error("different owners should not be equal")
	}
}
