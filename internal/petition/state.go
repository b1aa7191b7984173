package petition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sasha-s/go-deadlock"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// ErrFactorSourceAlreadyUsed is returned when a factor source is recorded twice in one petition.
var ErrFactorSourceAlreadyUsed = errors.New("factor source already used in petition")

// State records the signatures obtained and the factors neglected for one petition.
// A factor source appears at most once across signed and neglected, except for
// simulated neglects. It is safe for concurrent access.
type State[ID signable.ID] struct {
	mu        deadlock.RWMutex
	signed    map[factor.SourceID]signature.HDSignature[ID] // signed maps source to its signature
	neglected map[factor.SourceID]factor.NeglectedInstance  // neglected maps source to its neglect
}

// NewState creates an empty state.
func NewState[ID signable.ID]() *State[ID] {
	return &State[ID]{
		signed:    make(map[factor.SourceID]signature.HDSignature[ID]),
		neglected: make(map[factor.SourceID]factor.NeglectedInstance),
	}
}

// newStateFrom creates a state holding a copy of the snapshot's contents.
func newStateFrom[ID signable.ID](snap Snapshot[ID]) *State[ID] {
	s := NewState[ID]()

	for id, sig := range snap.signed {
		s.signed[id] = sig
	}

	for id, n := range snap.neglected {
		s.neglected[id] = n
	}

	return s
}

// AddSignature records a signature. It panics if the factor source was
// already recorded: that is a bug in petition construction.
func (s *State[ID]) AddSignature(sig signature.HDSignature[ID]) {
	if err := s.TryAddSignature(sig); err != nil {
		panic(err)
	}
}

// TryAddSignature records a signature or returns ErrFactorSourceAlreadyUsed.
func (s *State[ID]) TryAddSignature(sig signature.HDSignature[ID]) error {
	id := sig.Source()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.assertNotReferenced(id); err != nil {
		return err
	}

	s.signed[id] = sig

	return nil
}

// Neglect records a neglected factor instance. It panics if the factor source
// was already recorded, unless the neglect is a simulation.
func (s *State[ID]) Neglect(n factor.NeglectedInstance) {
	if err := s.TryNeglect(n); err != nil {
		panic(err)
	}
}

// TryNeglect records a neglected factor instance or returns ErrFactorSourceAlreadyUsed.
// A simulated neglect of a source already recorded is a no-op.
func (s *State[ID]) TryNeglect(n factor.NeglectedInstance) error {
	id := n.Source()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.assertNotReferenced(id); err != nil {
		if n.Reason == factor.NeglectSimulation {
			return nil
		}

		return err
	}

	s.neglected[id] = n

	return nil
}

// assertNotReferenced fails if id is already signed or neglected.
// Caller must hold the write lock.
func (s *State[ID]) assertNotReferenced(id factor.SourceID) error {
	if _, ok := s.signed[id]; ok {
		return fmt.Errorf("%w: %s already signed", ErrFactorSourceAlreadyUsed, id)
	}

	if _, ok := s.neglected[id]; ok {
		return fmt.Errorf("%w: %s already neglected", ErrFactorSourceAlreadyUsed, id)
	}

	return nil
}

// AllSignatures returns a copy of the recorded signatures, ordered by factor source.
func (s *State[ID]) AllSignatures() []signature.HDSignature[ID] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedSignatures(s.signed)
}

// AllNeglected returns a copy of the recorded neglects, ordered by factor source.
func (s *State[ID]) AllNeglected() []factor.NeglectedInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedNeglected(s.neglected)
}

// ReferencesFactorSourceByID reports whether id was signed or neglected.
func (s *State[ID]) ReferencesFactorSourceByID(id factor.SourceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, signed := s.signed[id]
	_, neglected := s.neglected[id]

	return signed || neglected
}

// Snapshot returns an immutable copy of the state.
func (s *State[ID]) Snapshot() Snapshot[ID] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot[ID]{
		signed:    make(map[factor.SourceID]signature.HDSignature[ID], len(s.signed)),
		neglected: make(map[factor.SourceID]factor.NeglectedInstance, len(s.neglected)),
	}

	for id, sig := range s.signed {
		snap.signed[id] = sig
	}

	for id, n := range s.neglected {
		snap.neglected[id] = n
	}

	return snap
}

// Snapshot is a point-in-time copy of a State used by the status evaluation.
type Snapshot[ID signable.ID] struct {
	signed    map[factor.SourceID]signature.HDSignature[ID]
	neglected map[factor.SourceID]factor.NeglectedInstance
}

// HasSigned reports whether id signed.
func (s Snapshot[ID]) HasSigned(id factor.SourceID) bool {
	_, ok := s.signed[id]
	return ok
}

// HasNeglected reports whether id was neglected.
func (s Snapshot[ID]) HasNeglected(id factor.SourceID) bool {
	_, ok := s.neglected[id]
	return ok
}

// Signatures returns the signatures in the snapshot, ordered by factor source.
func (s Snapshot[ID]) Signatures() []signature.HDSignature[ID] {
	return sortedSignatures(s.signed)
}

// Neglected returns the neglects in the snapshot, ordered by factor source.
func (s Snapshot[ID]) Neglected() []factor.NeglectedInstance {
	return sortedNeglected(s.neglected)
}

// sortedSignatures copies a signature map into a slice ordered by source.
func sortedSignatures[ID signable.ID](m map[factor.SourceID]signature.HDSignature[ID]) []signature.HDSignature[ID] {
	out := make([]signature.HDSignature[ID], 0, len(m))
	for _, sig := range m {
		out = append(out, sig)
	}

	slices.SortFunc(out, func(a, b signature.HDSignature[ID]) int {
		return a.Source().Compare(b.Source())
	})

	return out
}

// sortedNeglected copies a neglect map into a slice ordered by source.
func sortedNeglected(m map[factor.SourceID]factor.NeglectedInstance) []factor.NeglectedInstance {
	out := make([]factor.NeglectedInstance, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}

	slices.SortFunc(out, func(a, b factor.NeglectedInstance) int {
		return a.Source().Compare(b.Source())
	})

	return out
}
