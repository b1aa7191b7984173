package factor

import (
	"fmt"
	"strings"
)

// Kind is the kind of a factor source.
type Kind uint8

const (
	// KindDevice is a key stored in the host device's secure enclave.
	KindDevice Kind = iota + 1

	// KindLedger is a Ledger hardware wallet.
	KindLedger

	// KindArculus is an Arculus NFC card.
	KindArculus

	// KindPassword is a key derived from a user password.
	KindPassword

	// KindOffDeviceMnemonic is a mnemonic the user keeps outside the device.
	KindOffDeviceMnemonic

	// KindSecurityQuestions is a mnemonic sealed by answers to security questions.
	KindSecurityQuestions

	// KindTrustedContact is a key held by a trusted third party.
	KindTrustedContact
)

// AllKinds lists every kind in signing order.
var AllKinds = []Kind{
	KindLedger,
	KindArculus,
	KindPassword,
	KindOffDeviceMnemonic,
	KindSecurityQuestions,
	KindTrustedContact,
	KindDevice,
}

var kindNames = map[Kind]string{
	KindDevice:            "device",
	KindLedger:            "ledger",
	KindArculus:           "arculus",
	KindPassword:          "password",
	KindOffDeviceMnemonic: "off_device_mnemonic",
	KindSecurityQuestions: "security_questions",
	KindTrustedContact:    "trusted_contact",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// SigningOrder returns the position of the kind in the dispatch order.
// Hardware comes first so the user handles physical devices while they are at
// hand; device keys come last since they need no interaction beyond biometrics.
func (k Kind) SigningOrder() int {
	for i, other := range AllKinds {
		if other == k {
			return i
		}
	}

	return len(AllKinds)
}

// ParseKind parses the name produced by String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown factor source kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid factor source kind %d", uint8(k))
	}

	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}
