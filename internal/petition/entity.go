package petition

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/security"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// ForEntity collects the signatures one entity needs to authorize one signable.
// An unsecurified entity has a single 1-of-1 petition; a securified entity has
// one petition per exercised role, judged by its access policy. The exercised
// roles never change after construction.
type ForEntity[ID signable.ID] struct {
	address      factor.Address        // address is the entity signing
	payload      ID                    // payload is the signable the entity authorizes
	unsecurified *ForFactors[ID]       // unsecurified is set for unsecurified entities
	roles        []*ForRole[ID]        // roles are the exercised roles of a securified entity
	policy       security.AccessPolicy // policy judges role outcomes
}

// NewForEntity creates the petitions entity needs to authorize payload.
func NewForEntity[ID signable.ID](payload ID, entity security.Entity) (*ForEntity[ID], error) {
	if err := entity.Validate(); err != nil {
		return nil, fmt.Errorf("validate entity:\n%w", err)
	}

	e := &ForEntity[ID]{
		address: entity.Address,
		payload: payload,
	}

	if !entity.IsSecurified() {
		e.unsecurified = NewUnsecurified[ID](*entity.Unsecurified)
		return e, nil
	}

	for _, role := range entity.ExercisedRoles() {
		r, err := NewForRole[ID](role, entity.Matrix.Role(role))
		if err != nil {
			return nil, fmt.Errorf("entity %s:\n%w", entity.Address, err)
		}

		e.roles = append(e.roles, r)
	}

	e.policy = entity.AccessPolicy()

	return e, nil
}

// NewUnsecurifiedEntity creates the petition of an unsecurified entity.
func NewUnsecurifiedEntity[ID signable.ID](payload ID, addr factor.Address, instance factor.HDInstance) *ForEntity[ID] {
	return &ForEntity[ID]{
		address:      addr,
		payload:      payload,
		unsecurified: NewUnsecurified[ID](instance),
	}
}

// Address returns the entity address.
func (e *ForEntity[ID]) Address() factor.Address {
	return e.address
}

// Payload returns the signable the entity authorizes.
func (e *ForEntity[ID]) Payload() ID {
	return e.payload
}

// IsSecurified reports whether the entity is judged by roles.
func (e *ForEntity[ID]) IsSecurified() bool {
	return e.unsecurified == nil
}

// Status evaluates the entity.
func (e *ForEntity[ID]) Status() Status {
	if e.unsecurified != nil {
		return e.unsecurified.Status()
	}

	statuses := make(map[security.Role]Status, len(e.roles))
	for _, r := range e.roles {
		statuses[r.role] = r.Status()
	}

	return e.judge(statuses)
}

// StatusIfNeglected evaluates the entity as if sources were neglected.
func (e *ForEntity[ID]) StatusIfNeglected(sources map[factor.SourceID]struct{}) Status {
	if e.unsecurified != nil {
		return e.unsecurified.StatusIfNeglected(sources)
	}

	statuses := make(map[security.Role]Status, len(e.roles))
	for _, r := range e.roles {
		statuses[r.role] = r.StatusIfNeglected(sources)
	}

	return e.judge(statuses)
}

// judge applies the access policy to role statuses.
func (e *ForEntity[ID]) judge(statuses map[security.Role]Status) Status {
	succeeded := func(r security.Role) bool { return statuses[r] == StatusSuccess }
	failed := func(r security.Role) bool { return statuses[r] == StatusFail }

	if e.policy.Satisfied(succeeded) {
		return StatusSuccess
	}

	if e.policy.Unsatisfiable(failed) {
		return StatusFail
	}

	return StatusInProgress
}

// RoleStatuses returns the status of every exercised role. Nil for unsecurified entities.
func (e *ForEntity[ID]) RoleStatuses() map[security.Role]Status {
	if e.unsecurified != nil {
		return nil
	}

	out := make(map[security.Role]Status, len(e.roles))
	for _, r := range e.roles {
		out[r.role] = r.Status()
	}

	return out
}

// AddSignatureIfRelevant records sig if it was produced for this entity and
// payload by one of its factor instances.
func (e *ForEntity[ID]) AddSignatureIfRelevant(sig signature.HDSignature[ID]) bool {
	added, err := e.TryAddSignatureIfRelevant(sig)
	if err != nil {
		panic(err)
	}

	return added
}

// TryAddSignatureIfRelevant is AddSignatureIfRelevant returning
// ErrFactorSourceAlreadyUsed instead of panicking.
func (e *ForEntity[ID]) TryAddSignatureIfRelevant(sig signature.HDSignature[ID]) (bool, error) {
	if sig.PayloadID() != e.payload || sig.Owned().Owner != e.address {
		return false, nil
	}

	if e.unsecurified != nil {
		return e.unsecurified.TryAddSignatureIfRelevant(sig)
	}

	added := false

	for _, r := range e.roles {
		ok, err := r.TryAddSignatureIfRelevant(sig)
		if err != nil {
			return added, err
		}

		added = added || ok
	}

	return added, nil
}

// NeglectIfReferenced records n in every petition referencing its factor
// source that has not used the source yet.
func (e *ForEntity[ID]) NeglectIfReferenced(n factor.NeglectedFactor) bool {
	neglected, err := e.TryNeglectIfReferenced(n)
	if err != nil {
		panic(err)
	}

	return neglected
}

// TryNeglectIfReferenced is NeglectIfReferenced returning the first error.
func (e *ForEntity[ID]) TryNeglectIfReferenced(n factor.NeglectedFactor) (bool, error) {
	if e.unsecurified != nil {
		if e.unsecurified.Used(n.Source) {
			return false, nil
		}

		return e.unsecurified.TryNeglectIfReferenced(n)
	}

	neglected := false

	for _, r := range e.roles {
		ok, err := r.TryNeglectIfReferenced(n)
		if err != nil {
			return neglected, err
		}

		neglected = neglected || ok
	}

	return neglected, nil
}

// References reports whether any petition of the entity references id.
func (e *ForEntity[ID]) References(id factor.SourceID) bool {
	if e.unsecurified != nil {
		return e.unsecurified.References(id)
	}

	for _, r := range e.roles {
		if r.references(id) {
			return true
		}
	}

	return false
}

// ReferencedFactorSources returns every factor source the entity's petitions list.
func (e *ForEntity[ID]) ReferencedFactorSources() []factor.SourceID {
	seen := make(map[factor.SourceID]struct{})
	var out []factor.SourceID

	add := func(p *ForFactors[ID]) {
		for _, f := range p.input.factors {
			if _, ok := seen[f.Source]; ok {
				continue
			}

			seen[f.Source] = struct{}{}
			out = append(out, f.Source)
		}
	}

	if e.unsecurified != nil {
		add(e.unsecurified)
	}

	for _, r := range e.roles {
		for _, p := range r.petitions() {
			add(p)
		}
	}

	return out
}

// Outstanding returns the owned instances still worth asking to sign.
// Empty once the entity is finished.
func (e *ForEntity[ID]) Outstanding() []factor.OwnedInstance {
	if e.Status().IsFinished() {
		return nil
	}

	var instances []factor.HDInstance

	if e.unsecurified != nil {
		instances = e.unsecurified.Outstanding()
	}

	for _, r := range e.roles {
		instances = append(instances, r.outstanding()...)
	}

	return e.own(instances)
}

// Unused returns the owned instances that have neither signed nor been
// neglected, including those of finished petitions.
func (e *ForEntity[ID]) Unused() []factor.OwnedInstance {
	var instances []factor.HDInstance

	if e.unsecurified != nil {
		instances = e.unsecurified.Unused()
	}

	for _, r := range e.roles {
		instances = append(instances, r.unused()...)
	}

	return e.own(instances)
}

// own pairs instances with the entity address, dropping duplicates.
func (e *ForEntity[ID]) own(instances []factor.HDInstance) []factor.OwnedInstance {
	out := make([]factor.OwnedInstance, 0, len(instances))

	for _, inst := range instances {
		owned := factor.OwnedInstance{Owner: e.address, Instance: inst}

		dup := false
		for _, o := range out {
			if o.Equal(owned) {
				dup = true
				break
			}
		}

		if !dup {
			out = append(out, owned)
		}
	}

	return out
}

// AllSignatures returns the signatures across all petitions of the entity.
func (e *ForEntity[ID]) AllSignatures() []signature.HDSignature[ID] {
	if e.unsecurified != nil {
		return e.unsecurified.AllSignatures()
	}

	var out []signature.HDSignature[ID]
	for _, r := range e.roles {
		out = append(out, r.AllSignatures()...)
	}

	return out
}

// AllNeglected returns the neglects across all petitions of the entity.
func (e *ForEntity[ID]) AllNeglected() []factor.NeglectedInstance {
	if e.unsecurified != nil {
		return e.unsecurified.AllNeglected()
	}

	var out []factor.NeglectedInstance
	for _, r := range e.roles {
		out = append(out, r.AllNeglected()...)
	}

	return out
}
