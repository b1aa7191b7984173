package petition

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/security"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// ForRole combines the threshold and override petitions of one role.
// The role succeeds when either list succeeds and fails when every list failed.
type ForRole[ID signable.ID] struct {
	role      security.Role   // role is the exercised role
	threshold *ForFactors[ID] // threshold is nil when the role has no threshold factors
	override  *ForFactors[ID] // override is nil when the role has no override factors
}

// NewForRole creates the petitions of role from its factor list.
func NewForRole[ID signable.ID](role security.Role, list security.FactorList) (*ForRole[ID], error) {
	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("role %s:\n%w", role, err)
	}

	r := &ForRole[ID]{role: role}

	if len(list.ThresholdFactors) > 0 {
		p, ok := NewThreshold[ID](list.ThresholdFactors, list.Threshold)
		if !ok {
			return nil, fmt.Errorf("role %s: invalid threshold list", role)
		}

		r.threshold = p
	}

	if len(list.OverrideFactors) > 0 {
		p, ok := NewOverride[ID](list.OverrideFactors)
		if !ok {
			return nil, fmt.Errorf("role %s: invalid override list", role)
		}

		r.override = p
	}

	return r, nil
}

// Role returns the exercised role.
func (r *ForRole[ID]) Role() security.Role {
	return r.role
}

// petitions returns the present factor petitions, threshold first.
func (r *ForRole[ID]) petitions() []*ForFactors[ID] {
	out := make([]*ForFactors[ID], 0, 2)

	if r.threshold != nil {
		out = append(out, r.threshold)
	}

	if r.override != nil {
		out = append(out, r.override)
	}

	return out
}

// combine folds list statuses into a role status.
func combine(statuses []Status) Status {
	failed := 0

	for _, s := range statuses {
		switch s {
		case StatusSuccess:
			return StatusSuccess
		case StatusFail:
			failed++
		}
	}

	if failed == len(statuses) {
		return StatusFail
	}

	return StatusInProgress
}

// Status evaluates the role.
func (r *ForRole[ID]) Status() Status {
	ps := r.petitions()
	statuses := make([]Status, len(ps))

	for i, p := range ps {
		statuses[i] = p.Status()
	}

	return combine(statuses)
}

// StatusIfNeglected evaluates the role as if sources were neglected.
func (r *ForRole[ID]) StatusIfNeglected(sources map[factor.SourceID]struct{}) Status {
	ps := r.petitions()
	statuses := make([]Status, len(ps))

	for i, p := range ps {
		statuses[i] = p.StatusIfNeglected(sources)
	}

	return combine(statuses)
}

// AddSignatureIfRelevant offers sig to both lists.
func (r *ForRole[ID]) AddSignatureIfRelevant(sig signature.HDSignature[ID]) bool {
	added, err := r.TryAddSignatureIfRelevant(sig)
	if err != nil {
		panic(err)
	}

	return added
}

// TryAddSignatureIfRelevant offers sig to both lists, stopping at the first error.
func (r *ForRole[ID]) TryAddSignatureIfRelevant(sig signature.HDSignature[ID]) (bool, error) {
	added := false

	for _, p := range r.petitions() {
		ok, err := p.TryAddSignatureIfRelevant(sig)
		if err != nil {
			return added, fmt.Errorf("role %s:\n%w", r.role, err)
		}

		added = added || ok
	}

	return added, nil
}

// NeglectIfReferenced offers n to the lists that reference its factor source
// and have not used it yet.
func (r *ForRole[ID]) NeglectIfReferenced(n factor.NeglectedFactor) bool {
	neglected, err := r.TryNeglectIfReferenced(n)
	if err != nil {
		panic(err)
	}

	return neglected
}

// TryNeglectIfReferenced is NeglectIfReferenced returning the first error.
func (r *ForRole[ID]) TryNeglectIfReferenced(n factor.NeglectedFactor) (bool, error) {
	neglected := false

	for _, p := range r.petitions() {
		if !p.References(n.Source) || p.Used(n.Source) {
			continue
		}

		ok, err := p.TryNeglectIfReferenced(n)
		if err != nil {
			return neglected, fmt.Errorf("role %s:\n%w", r.role, err)
		}

		neglected = neglected || ok
	}

	return neglected, nil
}

// outstanding returns the instances still worth asking for, across unfinished lists.
func (r *ForRole[ID]) outstanding() []factor.HDInstance {
	if r.Status().IsFinished() {
		return nil
	}

	var out []factor.HDInstance
	for _, p := range r.petitions() {
		out = append(out, p.Outstanding()...)
	}

	return out
}

// unused returns the unused instances of both lists, whatever the role status.
func (r *ForRole[ID]) unused() []factor.HDInstance {
	var out []factor.HDInstance
	for _, p := range r.petitions() {
		out = append(out, p.Unused()...)
	}

	return out
}

// AllSignatures returns the signatures of both lists.
func (r *ForRole[ID]) AllSignatures() []signature.HDSignature[ID] {
	var out []signature.HDSignature[ID]
	for _, p := range r.petitions() {
		out = append(out, p.AllSignatures()...)
	}

	return out
}

// AllNeglected returns the neglects of both lists.
func (r *ForRole[ID]) AllNeglected() []factor.NeglectedInstance {
	var out []factor.NeglectedInstance
	for _, p := range r.petitions() {
		out = append(out, p.AllNeglected()...)
	}

	return out
}

// references reports whether any list references id.
func (r *ForRole[ID]) references(id factor.SourceID) bool {
	for _, p := range r.petitions() {
		if p.References(id) {
			return true
		}
	}

	return false
}
