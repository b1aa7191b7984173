package petition

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/security"
	"FactorSign/internal/signable"
)

// Request asks for a signable to be authorized by a set of entities.
type Request[ID signable.ID] struct {
	Payload ID               // Payload is the signable
	Signers []factor.Address // Signers are the entities that must authorize it
}

// BuildForTransactions resolves every signer's security configuration and
// creates one petition per request. Payloads must be distinct.
func BuildForTransactions[ID signable.ID](requests []Request[ID], resolver security.Resolver) ([]*ForTransaction[ID], error) {
	seen := make(map[ID]struct{}, len(requests))
	out := make([]*ForTransaction[ID], 0, len(requests))

	for _, req := range requests {
		if _, dup := seen[req.Payload]; dup {
			return nil, fmt.Errorf("signable %s requested twice", req.Payload)
		}

		seen[req.Payload] = struct{}{}

		entities := make([]*ForEntity[ID], 0, len(req.Signers))

		for _, addr := range req.Signers {
			entity, err := resolver.Resolve(addr)
			if err != nil {
				return nil, fmt.Errorf("resolve %s for %s:\n%w", addr, req.Payload, err)
			}

			e, err := NewForEntity(req.Payload, entity)
			if err != nil {
				return nil, fmt.Errorf("petition for %s:\n%w", req.Payload, err)
			}

			entities = append(entities, e)
		}

		t, err := NewForTransaction(req.Payload, entities...)
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	return out, nil
}
