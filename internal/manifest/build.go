package manifest

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/keyring"
	"FactorSign/internal/petition"
	"FactorSign/internal/security"
	"FactorSign/internal/signable"
)

// Batch is a manifest turned into signing material.
type Batch struct {
	Ring     *keyring.Keyring                        // Ring holds every declared source
	Resolver security.StaticResolver                 // Resolver resolves the declared entities
	Requests []petition.Request[signable.IntentHash] // Requests are the signables in manifest order
	Names    map[factor.SourceID]string              // Names maps source ids back to manifest names

	sources map[string]*keyring.Source
}

// Build derives the sources and resolves every entity.
func (m *Manifest) Build() (*Batch, error) {
	b := &Batch{
		Ring:     keyring.New(),
		Resolver: make(security.StaticResolver, len(m.Entities)),
		Names:    make(map[factor.SourceID]string, len(m.Sources)),
		sources:  make(map[string]*keyring.Source, len(m.Sources)),
	}

	for _, s := range m.Sources {
		src, err := keyring.NewSource(s.Kind, []byte(s.Seed))
		if err != nil {
			return nil, fmt.Errorf("source %s:\n%w", s.Name, err)
		}

		if other, dup := b.Names[src.ID()]; dup {
			return nil, fmt.Errorf("sources %s and %s derive the same id", other, s.Name)
		}

		b.Ring.Add(src)
		b.Names[src.ID()] = s.Name
		b.sources[s.Name] = src
	}

	for _, e := range m.Entities {
		entity, err := b.entity(e)
		if err != nil {
			return nil, err
		}

		if err := entity.Validate(); err != nil {
			return nil, err
		}

		b.Resolver[entity.Address] = entity
	}

	for _, s := range m.Signables {
		req := petition.Request[signable.IntentHash]{Payload: signable.NewIntentHash([]byte(s.Payload))}

		for _, addr := range s.Signers {
			req.Signers = append(req.Signers, factor.Address(addr))
		}

		b.Requests = append(b.Requests, req)
	}

	return b, nil
}

// Source returns the source declared as name.
func (b *Batch) Source(name string) (*keyring.Source, bool) {
	s, ok := b.sources[name]
	return s, ok
}

// Name returns the manifest name of id, or its short form if undeclared.
func (b *Batch) Name(id factor.SourceID) string {
	if name, ok := b.Names[id]; ok {
		return name
	}

	return id.String()
}

// Petitions builds fresh petitions for every signable.
func (b *Batch) Petitions() ([]*petition.ForTransaction[signable.IntentHash], error) {
	return petition.BuildForTransactions(b.Requests, b.Resolver)
}

func (b *Batch) instance(addr string, ref FactorRef) (factor.HDInstance, error) {
	src, ok := b.sources[ref.Source]
	if !ok {
		return factor.HDInstance{}, fmt.Errorf("entity %s: %w %q", addr, ErrUnknownSource, ref.Source)
	}

	path := ref.Path
	if path == "" {
		path = DefaultPath
	}

	inst, err := src.Instance(factor.DerivationPath(path))
	if err != nil {
		return factor.HDInstance{}, fmt.Errorf("entity %s source %s:\n%w", addr, ref.Source, err)
	}

	return inst, nil
}

func (b *Batch) instances(addr string, refs []FactorRef) ([]factor.HDInstance, error) {
	out := make([]factor.HDInstance, 0, len(refs))

	for _, ref := range refs {
		inst, err := b.instance(addr, ref)
		if err != nil {
			return nil, err
		}

		out = append(out, inst)
	}

	return out, nil
}

func (b *Batch) entity(e Entity) (security.Entity, error) {
	addr := factor.Address(e.Address)

	if e.Unsecurified != nil {
		inst, err := b.instance(e.Address, *e.Unsecurified)
		if err != nil {
			return security.Entity{}, err
		}

		return security.NewUnsecurified(addr, inst), nil
	}

	var matrix security.Matrix

	for role, l := range e.lists() {
		threshold, err := b.instances(e.Address, l.Factors)
		if err != nil {
			return security.Entity{}, err
		}

		override, err := b.instances(e.Address, l.Override)
		if err != nil {
			return security.Entity{}, err
		}

		list := security.FactorList{Threshold: l.Threshold, ThresholdFactors: threshold, OverrideFactors: override}

		switch role {
		case security.RolePrimary:
			matrix.Primary = list
		case security.RoleRecovery:
			matrix.Recovery = list
		case security.RoleConfirmation:
			matrix.Confirmation = list
		}
	}

	roles, err := parseRoles(e.Roles)
	if err != nil {
		return security.Entity{}, fmt.Errorf("entity %s:\n%w", e.Address, err)
	}

	entity := security.NewSecurified(addr, matrix, roles...)

	if len(e.Policy) > 0 {
		policy := security.AccessPolicy{}

		for _, names := range e.Policy {
			combo, err := parseRoles(names)
			if err != nil {
				return security.Entity{}, fmt.Errorf("entity %s policy:\n%w", e.Address, err)
			}

			policy.Combinations = append(policy.Combinations, security.Combination(combo))
		}

		entity.Policy = &policy
	}

	return entity, nil
}

func parseRoles(names []string) ([]security.Role, error) {
	roles := make([]security.Role, 0, len(names))

	for _, name := range names {
		r, err := security.ParseRole(name)
		if err != nil {
			return nil, err
		}

		roles = append(roles, r)
	}

	return roles, nil
}
