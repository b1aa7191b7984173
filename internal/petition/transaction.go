package petition

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// ForTransaction groups the entity petitions of one signable. The signable is
// authorized once every entity succeeded and invalid once any entity failed.
type ForTransaction[ID signable.ID] struct {
	payload  ID                                 // payload is the signable
	entities []*ForEntity[ID]                   // entities in insertion order
	byAddr   map[factor.Address]*ForEntity[ID] // byAddr indexes entities by address
}

// NewForTransaction creates the petition of payload from its entity petitions.
// Every entity must target payload and appear once.
func NewForTransaction[ID signable.ID](payload ID, entities ...*ForEntity[ID]) (*ForTransaction[ID], error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("signable %s has no entities to sign", payload)
	}

	t := &ForTransaction[ID]{
		payload:  payload,
		entities: make([]*ForEntity[ID], 0, len(entities)),
		byAddr:   make(map[factor.Address]*ForEntity[ID], len(entities)),
	}

	for _, e := range entities {
		if e.payload != payload {
			return nil, fmt.Errorf("entity %s targets %s, not %s", e.address, e.payload, payload)
		}

		if _, dup := t.byAddr[e.address]; dup {
			return nil, fmt.Errorf("entity %s listed twice for %s", e.address, payload)
		}

		t.entities = append(t.entities, e)
		t.byAddr[e.address] = e
	}

	return t, nil
}

// Payload returns the signable id.
func (t *ForTransaction[ID]) Payload() ID {
	return t.payload
}

// Entities returns the entity petitions in insertion order.
func (t *ForTransaction[ID]) Entities() []*ForEntity[ID] {
	out := make([]*ForEntity[ID], len(t.entities))
	copy(out, t.entities)

	return out
}

// Entity returns the petition of addr.
func (t *ForTransaction[ID]) Entity(addr factor.Address) (*ForEntity[ID], bool) {
	e, ok := t.byAddr[addr]
	return e, ok
}

// Status evaluates the signable.
func (t *ForTransaction[ID]) Status() Status {
	return fold(t.entities, func(e *ForEntity[ID]) Status { return e.Status() })
}

// StatusIfNeglected evaluates the signable as if sources were neglected.
func (t *ForTransaction[ID]) StatusIfNeglected(sources map[factor.SourceID]struct{}) Status {
	return fold(t.entities, func(e *ForEntity[ID]) Status { return e.StatusIfNeglected(sources) })
}

// fold combines entity statuses: any fail fails, all success succeeds.
func fold[ID signable.ID](entities []*ForEntity[ID], status func(*ForEntity[ID]) Status) Status {
	succeeded := 0

	for _, e := range entities {
		switch status(e) {
		case StatusFail:
			return StatusFail
		case StatusSuccess:
			succeeded++
		}
	}

	if succeeded == len(entities) {
		return StatusSuccess
	}

	return StatusInProgress
}

// InvalidIfNeglected returns the entities that would fail if sources were
// neglected and have not failed already.
func (t *ForTransaction[ID]) InvalidIfNeglected(sources map[factor.SourceID]struct{}) []factor.Address {
	var out []factor.Address

	for _, e := range t.entities {
		if e.Status() == StatusFail {
			continue
		}

		if e.StatusIfNeglected(sources) == StatusFail {
			out = append(out, e.address)
		}
	}

	return out
}

// AddSignatureIfRelevant records sig in the entity it was produced for.
// It panics if the factor source was already recorded for that entity.
func (t *ForTransaction[ID]) AddSignatureIfRelevant(sig signature.HDSignature[ID]) bool {
	added, err := t.TryAddSignatureIfRelevant(sig)
	if err != nil {
		panic(err)
	}

	return added
}

// TryAddSignatureIfRelevant is AddSignatureIfRelevant returning
// ErrFactorSourceAlreadyUsed instead of panicking. Use it for signatures
// from outside the collector, such as a journal.
func (t *ForTransaction[ID]) TryAddSignatureIfRelevant(sig signature.HDSignature[ID]) (bool, error) {
	if sig.PayloadID() != t.payload {
		return false, nil
	}

	e, ok := t.byAddr[sig.Owned().Owner]
	if !ok {
		return false, nil
	}

	added, err := e.TryAddSignatureIfRelevant(sig)
	if err != nil {
		return false, fmt.Errorf("entity %s:\n%w", e.Address(), err)
	}

	return added, nil
}

// NeglectIfReferenced records n in every entity referencing its factor source.
func (t *ForTransaction[ID]) NeglectIfReferenced(n factor.NeglectedFactor) bool {
	neglected, err := t.TryNeglectIfReferenced(n)
	if err != nil {
		panic(err)
	}

	return neglected
}

// TryNeglectIfReferenced is NeglectIfReferenced returning the first error.
func (t *ForTransaction[ID]) TryNeglectIfReferenced(n factor.NeglectedFactor) (bool, error) {
	neglected := false

	for _, e := range t.entities {
		if !e.References(n.Source) {
			continue
		}

		ok, err := e.TryNeglectIfReferenced(n)
		if err != nil {
			return neglected, fmt.Errorf("entity %s:\n%w", e.Address(), err)
		}

		neglected = neglected || ok
	}

	return neglected, nil
}

// References reports whether any entity references id.
func (t *ForTransaction[ID]) References(id factor.SourceID) bool {
	for _, e := range t.entities {
		if e.References(id) {
			return true
		}
	}

	return false
}

// ReferencedFactorSources returns every factor source referenced by any entity.
func (t *ForTransaction[ID]) ReferencedFactorSources() []factor.SourceID {
	seen := make(map[factor.SourceID]struct{})
	var out []factor.SourceID

	for _, e := range t.entities {
		for _, id := range e.ReferencedFactorSources() {
			if _, ok := seen[id]; ok {
				continue
			}

			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	return out
}

// OutstandingFor returns the owned instances derived from id that unfinished
// entities still need. Empty once the signable is finished.
func (t *ForTransaction[ID]) OutstandingFor(id factor.SourceID) []factor.OwnedInstance {
	if t.Status().IsFinished() {
		return nil
	}

	var out []factor.OwnedInstance

	for _, e := range t.entities {
		for _, owned := range e.Outstanding() {
			if owned.Instance.Source == id {
				out = append(out, owned)
			}
		}
	}

	return out
}

// UnusedFor returns the owned instances derived from id that have neither
// signed nor been neglected, including those of entities that already
// succeeded. Empty once the signable failed.
func (t *ForTransaction[ID]) UnusedFor(id factor.SourceID) []factor.OwnedInstance {
	if t.Status() == StatusFail {
		return nil
	}

	var out []factor.OwnedInstance

	for _, e := range t.entities {
		for _, owned := range e.Unused() {
			if owned.Instance.Source == id {
				out = append(out, owned)
			}
		}
	}

	return out
}

// FailedEntities returns the entities that failed.
func (t *ForTransaction[ID]) FailedEntities() []factor.Address {
	var out []factor.Address

	for _, e := range t.entities {
		if e.Status() == StatusFail {
			out = append(out, e.address)
		}
	}

	return out
}

// AllSignatures returns the signatures across all entities.
func (t *ForTransaction[ID]) AllSignatures() []signature.HDSignature[ID] {
	var out []signature.HDSignature[ID]
	for _, e := range t.entities {
		out = append(out, e.AllSignatures()...)
	}

	return out
}

// AllNeglected returns the neglects across all entities.
func (t *ForTransaction[ID]) AllNeglected() []factor.NeglectedInstance {
	var out []factor.NeglectedInstance
	for _, e := range t.entities {
		out = append(out, e.AllNeglected()...)
	}

	return out
}
