package keyring

import (
	"context"
	"fmt"
	"sync"

	"FactorSign/internal/collector"
	"FactorSign/internal/factor"
	"FactorSign/internal/logger"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"

	"golang.org/x/sync/errgroup"
)

// defaultWorkers bounds the sources a poly session signs with in parallel.
const defaultWorkers = 4

// Keyring holds software factor sources by id.
type Keyring struct {
	mu      sync.RWMutex
	sources map[factor.SourceID]*Source

	// skipped sources are reported as skipped by the interactors.
	skipped map[factor.SourceID]struct{}
}

// New creates a keyring holding sources.
func New(sources ...*Source) *Keyring {
	k := &Keyring{
		sources: make(map[factor.SourceID]*Source, len(sources)),
		skipped: make(map[factor.SourceID]struct{}),
	}

	for _, s := range sources {
		k.sources[s.ID()] = s
	}

	return k
}

// Add stores s.
func (k *Keyring) Add(s *Source) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.sources[s.ID()] = s
}

// Get returns the source with id.
func (k *Keyring) Get(id factor.SourceID) (*Source, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s, ok := k.sources[id]
	return s, ok
}

// Skip makes the interactors report id as skipped by the user.
func (k *Keyring) Skip(id factor.SourceID) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.skipped[id] = struct{}{}
}

func (k *Keyring) isSkipped(id factor.SourceID) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	_, ok := k.skipped[id]
	return ok
}

// Len returns the number of sources.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.sources)
}

// signRequest signs every owned instance of req with the matching source.
func signRequest[ID signable.ID](k *Keyring, req collector.SourceRequest[ID]) ([]signature.HDSignature[ID], error) {
	src, ok := k.Get(req.Source)
	if !ok {
		return nil, fmt.Errorf("factor source %s not in keyring", req.Source)
	}

	out := make([]signature.HDSignature[ID], 0, req.Instances())

	for _, in := range req.Inputs {
		digest := in.Payload.Digest()

		for _, owned := range in.Owned {
			sig, err := src.Sign(owned.Instance.Path, digest[:])
			if err != nil {
				return nil, fmt.Errorf("sign %s with %s:\n%w", in.Payload, owned, err)
			}

			out = append(out, signature.HDSignature[ID]{
				Input:     signature.HDInput[ID]{PayloadID: in.Payload, Owned: owned},
				Signature: sig,
			})
		}
	}

	return out, nil
}

// PolySigner signs with many keyring sources in one session, in parallel.
type PolySigner[ID signable.ID] struct {
	ring    *Keyring
	workers int
}

// NewPolySigner creates a poly interactor over ring.
func NewPolySigner[ID signable.ID](ring *Keyring) *PolySigner[ID] {
	return &PolySigner[ID]{ring: ring, workers: defaultWorkers}
}

// SignPoly signs every request. A source missing from the keyring fails the
// whole session, as a real device session would.
func (p *PolySigner[ID]) SignPoly(ctx context.Context, req collector.PolyRequest[ID]) (collector.PolyResponse[ID], error) {
	results := make([][]signature.HDSignature[ID], len(req.Sources))
	skipped := make([]bool, len(req.Sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, r := range req.Sources {
		if p.ring.isSkipped(r.Source) {
			skipped[i] = true
			continue
		}

		i, r := i, r
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			sigs, err := signRequest(p.ring, r)
			if err != nil {
				return err
			}

			results[i] = sigs

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return collector.PolyResponse[ID]{}, fmt.Errorf("poly session for %s:\n%w", req.Kind, err)
	}

	var resp collector.PolyResponse[ID]

	for i, r := range req.Sources {
		if skipped[i] {
			resp.Skipped = append(resp.Skipped, r.Source)
			continue
		}

		resp.Signatures = append(resp.Signatures, results[i]...)
	}

	logger.Debug("poly session signed",
		"kind", req.Kind,
		"sources", len(req.Sources),
		"signatures", len(resp.Signatures),
	)

	return resp, nil
}

// MonoSigner signs with one keyring source at a time.
type MonoSigner[ID signable.ID] struct {
	ring *Keyring
}

// NewMonoSigner creates a mono interactor over ring.
func NewMonoSigner[ID signable.ID](ring *Keyring) *MonoSigner[ID] {
	return &MonoSigner[ID]{ring: ring}
}

// SignMono signs the request of a single source.
func (m *MonoSigner[ID]) SignMono(ctx context.Context, req collector.MonoRequest[ID]) (collector.MonoResponse[ID], error) {
	if err := ctx.Err(); err != nil {
		return collector.MonoResponse[ID]{}, err
	}

	if m.ring.isSkipped(req.Source.Source) {
		return collector.MonoResponse[ID]{Skipped: true}, nil
	}

	sigs, err := signRequest(m.ring, req.Source)
	if err != nil {
		return collector.MonoResponse[ID]{}, err
	}

	return collector.MonoResponse[ID]{Signatures: sigs}, nil
}

// Interactors registers a poly signer for the poly kinds and a mono signer
// for every other kind.
func Interactors[ID signable.ID](ring *Keyring, poly ...factor.Kind) *collector.Interactors[ID] {
	isPoly := make(map[factor.Kind]bool, len(poly))
	for _, k := range poly {
		isPoly[k] = true
	}

	in := collector.NewInteractors[ID]()
	ps := NewPolySigner[ID](ring)
	ms := NewMonoSigner[ID](ring)

	for _, k := range factor.AllKinds {
		if isPoly[k] {
			in.Poly(k, ps)
		} else {
			in.Mono(k, ms)
		}
	}

	return in
}
