package signature

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
)

var (
	// ErrCurveMismatch is returned when a signature's curve differs from its key's.
	ErrCurveMismatch = errors.New("signature curve does not match public key curve")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signature is a curve-tagged signature.
type Signature struct {
	Curve factor.Curve // Curve is the curve the signature was produced on
	Bytes []byte       // Bytes is the signature encoding
}

// String returns "curve:hexprefix".
func (s Signature) String() string {
	n := len(s.Bytes)
	if n > 8 {
		n = 8
	}

	return s.Curve.String() + ":" + hex.EncodeToString(s.Bytes[:n])
}

// Verify checks the signature over message against pk.
func (s Signature) Verify(pk factor.PublicKey, message []byte) error {
	if s.Curve != pk.Curve {
		return ErrCurveMismatch
	}

	var ok bool

	switch s.Curve {
	case factor.CurveEd25519:
		ok = len(pk.Bytes) == ed25519.PublicKeySize && ed25519.Verify(pk.Bytes, message, s.Bytes)
	case factor.CurveBLS12381:
		ok = VerifyBLS(s.Bytes, message, pk.Bytes)
	default:
		return fmt.Errorf("unsupported curve %s", s.Curve)
	}

	if !ok {
		return ErrInvalidSignature
	}

	return nil
}

// HDInput is what a factor source was asked to sign: a payload, for an owner, with a key.
type HDInput[ID signable.ID] struct {
	PayloadID ID                   // PayloadID identifies the signed payload
	Owned     factor.OwnedInstance // Owned is the key and the entity it signs for
}

// Source returns the factor source of the signing key.
func (in HDInput[ID]) Source() factor.SourceID {
	return in.Owned.Instance.Source
}

// HDSignature is evidence that an owned factor instance signed a payload.
type HDSignature[ID signable.ID] struct {
	Input     HDInput[ID] // Input is what was signed and by whom
	Signature Signature   // Signature is the produced signature
}

// Source returns the factor source that produced the signature.
func (s HDSignature[ID]) Source() factor.SourceID {
	return s.Input.Source()
}

// PayloadID returns the id of the signed payload.
func (s HDSignature[ID]) PayloadID() ID {
	return s.Input.PayloadID
}

// Owned returns the owned factor instance that signed.
func (s HDSignature[ID]) Owned() factor.OwnedInstance {
	return s.Input.Owned
}

// Verify checks the signature over the payload digest against the instance key.
func (s HDSignature[ID]) Verify() error {
	digest := s.Input.PayloadID.Digest()

	if err := s.Signature.Verify(s.Input.Owned.Instance.PublicKey, digest[:]); err != nil {
		return fmt.Errorf("verify signature of %s for %s:\n%w", s.Input.Owned, s.Input.PayloadID, err)
	}

	return nil
}

// Key identifies a requested or produced signature.
type Key[ID signable.ID] struct {
	Source  factor.SourceID       // Source is the signing factor source
	Payload ID                    // Payload is the signed payload
	Owner   factor.Address        // Owner is the entity the signature is for
	Path    factor.DerivationPath // Path is the derivation path of the signing instance
}

// NewKey returns the key of a signature by source over payload for owned.
func NewKey[ID signable.ID](source factor.SourceID, payload ID, owned factor.OwnedInstance) Key[ID] {
	return Key[ID]{Source: source, Payload: payload, Owner: owned.Owner, Path: owned.Instance.Path}
}

// Key returns the identity of the signature.
func (s HDSignature[ID]) Key() Key[ID] {
	return NewKey(s.Source(), s.Input.PayloadID, s.Input.Owned)
}
