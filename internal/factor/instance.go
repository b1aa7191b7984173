package factor

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Curve is the elliptic curve a public key lives on.
type Curve uint8

const (
	// CurveEd25519 is used by device, password and mnemonic factor sources.
	CurveEd25519 Curve = iota + 1

	// CurveBLS12381 is used by hardware factor sources.
	CurveBLS12381
)

// String returns the curve name.
func (c Curve) String() string {
	switch c {
	case CurveEd25519:
		return "ed25519"
	case CurveBLS12381:
		return "bls12_381"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

// PublicKey is a curve-tagged public key.
type PublicKey struct {
	Curve Curve  // Curve is the curve of the key
	Bytes []byte // Bytes is the compressed key encoding
}

// Equal reports whether both keys are on the same curve with identical bytes.
func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.Curve == other.Curve && bytes.Equal(pk.Bytes, other.Bytes)
}

// String returns "curve:hex".
func (pk PublicKey) String() string {
	return pk.Curve.String() + ":" + hex.EncodeToString(pk.Bytes)
}

// DerivationPath is an opaque derivation path produced by the derivation layer.
type DerivationPath string

// HDInstance is a hierarchical deterministic factor instance: a public key
// derived at a path from a factor source.
type HDInstance struct {
	Source    SourceID       // Source is the factor source the key was derived from
	PublicKey PublicKey      // PublicKey is the derived public key
	Path      DerivationPath // Path is the derivation path of the key
}

// Equal reports whether both instances denote the same key.
func (i HDInstance) Equal(other HDInstance) bool {
	return i.Source == other.Source && i.Path == other.Path && i.PublicKey.Equal(other.PublicKey)
}

// String returns a short description for logs.
func (i HDInstance) String() string {
	return fmt.Sprintf("%s@%s", i.Source, i.Path)
}

// Address is an opaque account or persona address.
type Address string

// OwnedInstance pairs an entity address with one of the keys authorized to sign for it.
type OwnedInstance struct {
	Owner    Address    // Owner is the entity the key signs for
	Instance HDInstance // Instance is the authorized key
}

// Equal reports whether both owned instances have the same owner and key.
func (o OwnedInstance) Equal(other OwnedInstance) bool {
	return o.Owner == other.Owner && o.Instance.Equal(other.Instance)
}

// String returns a short description for logs.
func (o OwnedInstance) String() string {
	return fmt.Sprintf("%s/%s", o.Owner, o.Instance)
}
