package collector

import (
	"context"
	"errors"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// ErrUserSkipped is returned by an interactor when the user dismissed the
// signing prompt. Every factor source of the call is neglected as skipped.
var ErrUserSkipped = errors.New("user skipped signing")

// SignableInput lists the keys of one factor source that must sign one signable.
type SignableInput[ID signable.ID] struct {
	Payload ID                     // Payload is the signable to sign
	Owned   []factor.OwnedInstance // Owned are the keys to sign with, one per owner and path
}

// InvalidIfSkipped names a signable and the entities that would fail if the
// factor source were skipped.
type InvalidIfSkipped[ID signable.ID] struct {
	Payload  ID               // Payload is the signable that would become invalid
	Entities []factor.Address // Entities are the entities that would fail
}

// SourceRequest is everything one factor source is asked to sign.
type SourceRequest[ID signable.ID] struct {
	Source  factor.SourceID     // Source is the factor source asked to sign
	Inputs  []SignableInput[ID] // Inputs are the signables and keys, in batch order
	Invalid []InvalidIfSkipped[ID]
}

// Instances returns the number of signatures the request expects.
func (r SourceRequest[ID]) Instances() int {
	n := 0
	for _, in := range r.Inputs {
		n += len(in.Owned)
	}

	return n
}

// PolyRequest asks a poly interactor to sign with every listed factor source
// of one kind in a single session.
type PolyRequest[ID signable.ID] struct {
	Kind    factor.Kind         // Kind is the kind of every listed source
	Sources []SourceRequest[ID] // Sources are the per-source requests
}

// PolyResponse holds the signatures of a poly session. Sources listed in
// Skipped were dismissed by the user.
type PolyResponse[ID signable.ID] struct {
	Signatures []signature.HDSignature[ID]
	Skipped    []factor.SourceID
}

// MonoRequest asks a mono interactor to sign with one factor source.
type MonoRequest[ID signable.ID] struct {
	Kind   factor.Kind       // Kind is the kind of the source
	Source SourceRequest[ID] // Source is the request for the single source
}

// MonoResponse holds the signatures of one factor source, or Skipped.
type MonoResponse[ID signable.ID] struct {
	Signatures []signature.HDSignature[ID]
	Skipped    bool
}

// PolyInteractor signs with many factor sources of one kind at once.
type PolyInteractor[ID signable.ID] interface {
	SignPoly(ctx context.Context, req PolyRequest[ID]) (PolyResponse[ID], error)
}

// MonoInteractor signs with one factor source at a time.
type MonoInteractor[ID signable.ID] interface {
	SignMono(ctx context.Context, req MonoRequest[ID]) (MonoResponse[ID], error)
}

// Interactors maps factor source kinds to the interactor that handles them.
// A kind has either a poly or a mono interactor; registering one replaces
// the other.
type Interactors[ID signable.ID] struct {
	poly map[factor.Kind]PolyInteractor[ID]
	mono map[factor.Kind]MonoInteractor[ID]
}

// NewInteractors creates an empty lookup table.
func NewInteractors[ID signable.ID]() *Interactors[ID] {
	return &Interactors[ID]{
		poly: make(map[factor.Kind]PolyInteractor[ID]),
		mono: make(map[factor.Kind]MonoInteractor[ID]),
	}
}

// Poly registers a poly interactor for kind.
func (i *Interactors[ID]) Poly(kind factor.Kind, in PolyInteractor[ID]) *Interactors[ID] {
	delete(i.mono, kind)
	i.poly[kind] = in

	return i
}

// Mono registers a mono interactor for kind.
func (i *Interactors[ID]) Mono(kind factor.Kind, in MonoInteractor[ID]) *Interactors[ID] {
	delete(i.poly, kind)
	i.mono[kind] = in

	return i
}

// lookup returns the interactor registered for kind. At most one is non-nil.
func (i *Interactors[ID]) lookup(kind factor.Kind) (PolyInteractor[ID], MonoInteractor[ID]) {
	if i == nil {
		return nil, nil
	}

	return i.poly[kind], i.mono[kind]
}
