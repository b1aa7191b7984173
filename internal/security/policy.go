package security

import (
	"fmt"
	"strings"
)

// Combination is a set of roles that together authorize an operation.
type Combination []Role

// String returns the roles joined by "+".
func (c Combination) String() string {
	names := make([]string, len(c))
	for i, r := range c {
		names[i] = r.String()
	}

	return strings.Join(names, "+")
}

// AccessPolicy lists the role combinations that authorize an operation.
// An operation is authorized once every role of at least one combination has
// succeeded, and is unsatisfiable once every combination has a failed role.
type AccessPolicy struct {
	Combinations []Combination // Combinations are the alternatives, any one suffices
}

// DefaultPolicy lets each exercised role authorize on its own.
func DefaultPolicy(roles []Role) AccessPolicy {
	combos := make([]Combination, len(roles))
	for i, r := range roles {
		combos[i] = Combination{r}
	}

	return AccessPolicy{Combinations: combos}
}

// Satisfied reports whether some combination has all of its roles succeeded.
func (p AccessPolicy) Satisfied(succeeded func(Role) bool) bool {
	for _, combo := range p.Combinations {
		if len(combo) == 0 {
			continue
		}

		ok := true

		for _, r := range combo {
			if !succeeded(r) {
				ok = false
				break
			}
		}

		if ok {
			return true
		}
	}

	return false
}

// Unsatisfiable reports whether every combination contains a failed role.
func (p AccessPolicy) Unsatisfiable(failed func(Role) bool) bool {
	for _, combo := range p.Combinations {
		blocked := false

		for _, r := range combo {
			if failed(r) {
				blocked = true
				break
			}
		}

		if !blocked {
			return false
		}
	}

	return true
}

// Validate checks the policy only references exercised roles.
func (p AccessPolicy) Validate(exercised []Role) error {
	if len(p.Combinations) == 0 {
		return fmt.Errorf("access policy has no combinations")
	}

	known := make(map[Role]bool, len(exercised))
	for _, r := range exercised {
		known[r] = true
	}

	for _, combo := range p.Combinations {
		if len(combo) == 0 {
			return fmt.Errorf("access policy has an empty combination")
		}

		for _, r := range combo {
			if !known[r] {
				return fmt.Errorf("combination %s uses role %s which is not exercised", combo, r)
			}
		}
	}

	return nil
}
