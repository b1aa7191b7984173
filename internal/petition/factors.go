package petition

import (
	"FactorSign/internal/factor"
	"FactorSign/internal/logger"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// ForFactors is a petition for one factor list: it collects signatures from
// the list's factor sources until the list is satisfied or unsatisfiable.
// Its state is only mutated through its methods.
type ForFactors[ID signable.ID] struct {
	input Input      // input is what the petition requires
	state *State[ID] // state is what happened so far
}

// NewThreshold creates a petition requiring threshold of factors to sign.
// Returns false if factors is empty, lists a factor source twice or threshold
// exceeds the factor count.
func NewThreshold[ID signable.ID](factors []factor.HDInstance, threshold uint8) (*ForFactors[ID], bool) {
	in, ok := newInput(ListThreshold, factors, threshold)
	if !ok {
		return nil, false
	}

	return &ForFactors[ID]{input: in, state: NewState[ID]()}, true
}

// NewUnsecurified creates the 1-of-1 petition of an unsecurified entity.
func NewUnsecurified[ID signable.ID](instance factor.HDInstance) *ForFactors[ID] {
	p, _ := NewThreshold[ID]([]factor.HDInstance{instance}, 1)
	return p
}

// NewOverride creates a petition satisfied by any one of factors.
// Returns false if factors is empty or lists a factor source twice.
func NewOverride[ID signable.ID](factors []factor.HDInstance) (*ForFactors[ID], bool) {
	in, ok := newInput(ListOverride, factors, 0)
	if !ok {
		return nil, false
	}

	return &ForFactors[ID]{input: in, state: NewState[ID]()}, true
}

// Input returns what the petition requires.
func (p *ForFactors[ID]) Input() Input {
	return p.input
}

// References reports whether id is one of the petition's factor sources.
func (p *ForFactors[ID]) References(id factor.SourceID) bool {
	return p.input.References(id)
}

// Used reports whether id already signed or was neglected.
func (p *ForFactors[ID]) Used(id factor.SourceID) bool {
	return p.state.ReferencesFactorSourceByID(id)
}

// InstanceFor returns the petition's factor instance derived from id.
func (p *ForFactors[ID]) InstanceFor(id factor.SourceID) (factor.HDInstance, bool) {
	return p.input.instanceFor(id)
}

// AddSignatureIfRelevant records sig if its factor instance is one of the
// petition's candidates. Returns false without side effects otherwise.
// It panics if the factor source was already recorded.
func (p *ForFactors[ID]) AddSignatureIfRelevant(sig signature.HDSignature[ID]) bool {
	added, err := p.TryAddSignatureIfRelevant(sig)
	if err != nil {
		panic(err)
	}

	return added
}

// TryAddSignatureIfRelevant is AddSignatureIfRelevant returning
// ErrFactorSourceAlreadyUsed instead of panicking.
func (p *ForFactors[ID]) TryAddSignatureIfRelevant(sig signature.HDSignature[ID]) (bool, error) {
	if !p.input.contains(sig.Owned().Instance) {
		return false, nil
	}

	if err := p.state.TryAddSignature(sig); err != nil {
		return false, err
	}

	return true, nil
}

// NeglectIfReferenced records n against the petition's instance of the
// neglected factor source. No-op if the source is not a candidate.
func (p *ForFactors[ID]) NeglectIfReferenced(n factor.NeglectedFactor) bool {
	neglected, err := p.TryNeglectIfReferenced(n)
	if err != nil {
		panic(err)
	}

	return neglected
}

// TryNeglectIfReferenced is NeglectIfReferenced returning
// ErrFactorSourceAlreadyUsed instead of panicking.
func (p *ForFactors[ID]) TryNeglectIfReferenced(n factor.NeglectedFactor) (bool, error) {
	inst, ok := p.input.instanceFor(n.Source)
	if !ok {
		logger.Debug("neglect ignored, factor source not referenced",
			"source", n.Source,
			"reason", n.Reason,
		)

		return false, nil
	}

	if err := p.state.TryNeglect(factor.NeglectedInstance{Reason: n.Reason, Instance: inst}); err != nil {
		return false, err
	}

	return true, nil
}

// Status evaluates the petition from a fresh snapshot of its state.
func (p *ForFactors[ID]) Status() Status {
	return evaluate(p.input, p.state.Snapshot())
}

// StatusIfNeglected evaluates the status the petition would have if the given
// factor sources were neglected. The petition's own state is not touched.
func (p *ForFactors[ID]) StatusIfNeglected(sources map[factor.SourceID]struct{}) Status {
	sim := newStateFrom(p.state.Snapshot())

	for id := range sources {
		inst, ok := p.input.instanceFor(id)
		if !ok {
			continue
		}

		sim.Neglect(factor.NeglectedInstance{Reason: factor.NeglectSimulation, Instance: inst})
	}

	return evaluate(p.input, sim.Snapshot())
}

// AllSignatures returns the signatures collected so far.
func (p *ForFactors[ID]) AllSignatures() []signature.HDSignature[ID] {
	return p.state.AllSignatures()
}

// AllNeglected returns the factors neglected so far.
func (p *ForFactors[ID]) AllNeglected() []factor.NeglectedInstance {
	return p.state.AllNeglected()
}

// Outstanding returns the candidate instances that have neither signed nor
// been neglected. Empty once the petition is finished.
func (p *ForFactors[ID]) Outstanding() []factor.HDInstance {
	snap := p.state.Snapshot()

	if evaluate(p.input, snap).IsFinished() {
		return nil
	}

	return p.unused(snap)
}

// Unused returns the candidate instances that have neither signed nor been
// neglected, whether or not the petition is finished.
func (p *ForFactors[ID]) Unused() []factor.HDInstance {
	return p.unused(p.state.Snapshot())
}

func (p *ForFactors[ID]) unused(snap Snapshot[ID]) []factor.HDInstance {
	var out []factor.HDInstance

	for _, f := range p.input.factors {
		if !snap.HasSigned(f.Source) && !snap.HasNeglected(f.Source) {
			out = append(out, f)
		}
	}

	return out
}
