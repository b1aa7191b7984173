// Package keyring provides in-process software factor sources and the
// collector interactors built on them. Keys are derived deterministically
// from a seed with blake3 in key derivation mode: ed25519 for device,
// password and mnemonic-like kinds, BLS12-381 for hardware kinds.
package keyring

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/signature"

	"github.com/zeebo/blake3"
)

const (
	// masterContext derives the master secret of a factor source from its seed.
	masterContext = "FactorSign keyring 2026-01 master secret"

	// childContext derives the secret of one derivation path from the master secret.
	childContext = "FactorSign keyring 2026-01 child secret"

	// MinSeedSize is the minimum seed length accepted.
	MinSeedSize = 16
)

// ErrShortSeed is returned when a seed is shorter than MinSeedSize.
var ErrShortSeed = errors.New("seed too short")

// CurveFor returns the curve keys of kind live on.
func CurveFor(kind factor.Kind) factor.Curve {
	switch kind {
	case factor.KindLedger, factor.KindArculus:
		return factor.CurveBLS12381
	default:
		return factor.CurveEd25519
	}
}

// Source is a software factor source.
type Source struct {
	id     factor.SourceID // id is derived from the root public key
	kind   factor.Kind     // kind of the factor source
	curve  factor.Curve    // curve of every derived key
	master [32]byte        // master is the secret all paths derive from
}

// NewSource creates a factor source of kind from seed.
func NewSource(kind factor.Kind, seed []byte) (*Source, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid factor source kind %d", kind)
	}

	if len(seed) < MinSeedSize {
		return nil, fmt.Errorf("%w: %d < %d bytes", ErrShortSeed, len(seed), MinSeedSize)
	}

	s := &Source{kind: kind, curve: CurveFor(kind)}
	blake3.DeriveKey(masterContext, seed, s.master[:])

	root, err := s.publicKey("")
	if err != nil {
		return nil, fmt.Errorf("derive root key:\n%w", err)
	}

	s.id = factor.NewSourceID(kind, root.Bytes)

	return s, nil
}

// ID returns the factor source id.
func (s *Source) ID() factor.SourceID {
	return s.id
}

// Kind returns the factor source kind.
func (s *Source) Kind() factor.Kind {
	return s.kind
}

// Instance returns the factor instance at path.
func (s *Source) Instance(path factor.DerivationPath) (factor.HDInstance, error) {
	pk, err := s.publicKey(path)
	if err != nil {
		return factor.HDInstance{}, err
	}

	return factor.HDInstance{Source: s.id, PublicKey: pk, Path: path}, nil
}

// Sign signs message with the key at path.
func (s *Source) Sign(path factor.DerivationPath, message []byte) (signature.Signature, error) {
	secret := s.child(path)

	switch s.curve {
	case factor.CurveEd25519:
		priv := ed25519.NewKeyFromSeed(secret[:])
		return signature.Signature{Curve: s.curve, Bytes: ed25519.Sign(priv, message)}, nil
	case factor.CurveBLS12381:
		kp, err := signature.BLSKeyFromSeed(secret[:])
		if err != nil {
			return signature.Signature{}, fmt.Errorf("derive BLS key at %s:\n%w", path, err)
		}

		return signature.Signature{Curve: s.curve, Bytes: kp.Sign(message)}, nil
	default:
		return signature.Signature{}, fmt.Errorf("unsupported curve %s", s.curve)
	}
}

// publicKey derives the public key at path.
func (s *Source) publicKey(path factor.DerivationPath) (factor.PublicKey, error) {
	secret := s.child(path)

	switch s.curve {
	case factor.CurveEd25519:
		priv := ed25519.NewKeyFromSeed(secret[:])
		return factor.PublicKey{Curve: s.curve, Bytes: priv.Public().(ed25519.PublicKey)}, nil
	case factor.CurveBLS12381:
		kp, err := signature.BLSKeyFromSeed(secret[:])
		if err != nil {
			return factor.PublicKey{}, err
		}

		return factor.PublicKey{Curve: s.curve, Bytes: kp.PublicKeyBytes()}, nil
	default:
		return factor.PublicKey{}, fmt.Errorf("unsupported curve %s", s.curve)
	}
}

// child derives the 32-byte secret of path.
func (s *Source) child(path factor.DerivationPath) [32]byte {
	h := blake3.NewDeriveKey(childContext)
	h.Write(s.master[:])
	h.Write([]byte(path))

	var out [32]byte
	copy(out[:], h.Sum(nil))

	return out
}
