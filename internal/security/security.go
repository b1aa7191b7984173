// Package security models the security policies that govern entities:
// unsecurified entities sign with a single key, securified entities with a
// matrix of Primary, Recovery and Confirmation roles. Which role combinations
// authorize an operation is decided by an AccessPolicy supplied by the caller.
package security

import (
	"errors"
	"fmt"

	"FactorSign/internal/factor"
)

var (
	// ErrThresholdTooHigh is returned when a threshold exceeds its factor count.
	ErrThresholdTooHigh = errors.New("threshold exceeds number of threshold factors")

	// ErrDuplicateFactorSource is returned when a role lists a factor source twice.
	ErrDuplicateFactorSource = errors.New("factor source listed more than once in role")

	// ErrEmptyRole is returned when an exercised role has no factors.
	ErrEmptyRole = errors.New("role has no factors")

	// ErrNoRoles is returned when a securified entity exercises no role.
	ErrNoRoles = errors.New("securified entity exercises no role")

	// ErrUnknownEntity is returned by resolvers for addresses they do not know.
	ErrUnknownEntity = errors.New("unknown entity")
)

// Role is one of the roles of a security matrix.
type Role uint8

const (
	// RolePrimary signs everyday transactions.
	RolePrimary Role = iota + 1

	// RoleRecovery initiates recovery of the entity.
	RoleRecovery

	// RoleConfirmation confirms a recovery.
	RoleConfirmation
)

// AllRoles lists the roles in matrix order.
var AllRoles = []Role{RolePrimary, RoleRecovery, RoleConfirmation}

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleRecovery:
		return "recovery"
	case RoleConfirmation:
		return "confirmation"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if r.String() == s {
			return r, nil
		}
	}

	return 0, fmt.Errorf("unknown role %q", s)
}

// FactorList is the factor configuration of one role: a threshold list and an override list.
type FactorList struct {
	Threshold        uint8               // Threshold is how many threshold factors must sign
	ThresholdFactors []factor.HDInstance // ThresholdFactors are counted against Threshold
	OverrideFactors  []factor.HDInstance // OverrideFactors each suffice alone
}

// IsEmpty reports whether the list has no factors at all.
func (l FactorList) IsEmpty() bool {
	return len(l.ThresholdFactors) == 0 && len(l.OverrideFactors) == 0
}

// Validate checks threshold bounds and factor source uniqueness.
func (l FactorList) Validate() error {
	if l.IsEmpty() {
		return ErrEmptyRole
	}

	if int(l.Threshold) > len(l.ThresholdFactors) {
		return fmt.Errorf("%w: %d > %d", ErrThresholdTooHigh, l.Threshold, len(l.ThresholdFactors))
	}

	seen := make(map[factor.SourceID]struct{}, len(l.ThresholdFactors)+len(l.OverrideFactors))

	for _, list := range [][]factor.HDInstance{l.ThresholdFactors, l.OverrideFactors} {
		for _, inst := range list {
			if _, dup := seen[inst.Source]; dup {
				return fmt.Errorf("%w: %s", ErrDuplicateFactorSource, inst.Source)
			}

			seen[inst.Source] = struct{}{}
		}
	}

	return nil
}

// Matrix holds the factor lists of all three roles.
type Matrix struct {
	Primary      FactorList // Primary is the everyday signing role
	Recovery     FactorList // Recovery is the recovery initiation role
	Confirmation FactorList // Confirmation is the recovery confirmation role
}

// Role returns the factor list of r.
func (m Matrix) Role(r Role) FactorList {
	switch r {
	case RolePrimary:
		return m.Primary
	case RoleRecovery:
		return m.Recovery
	case RoleConfirmation:
		return m.Confirmation
	default:
		return FactorList{}
	}
}

// Entity is the resolved security configuration of an account or persona
// for one signing operation.
type Entity struct {
	Address factor.Address // Address is the entity address

	// Unsecurified is the single transaction-signing key of an unsecurified entity.
	// Nil when the entity is securified.
	Unsecurified *factor.HDInstance

	// Matrix is the security matrix of a securified entity.
	Matrix *Matrix

	// Roles are the roles exercised for this operation. Empty means every
	// non-empty role of the matrix.
	Roles []Role

	// Policy decides which combinations of roles authorize the operation.
	// Nil means DefaultPolicy over the exercised roles.
	Policy *AccessPolicy
}

// NewUnsecurified creates an unsecurified entity.
func NewUnsecurified(addr factor.Address, instance factor.HDInstance) Entity {
	return Entity{Address: addr, Unsecurified: &instance}
}

// NewSecurified creates a securified entity exercising roles.
func NewSecurified(addr factor.Address, matrix Matrix, roles ...Role) Entity {
	return Entity{Address: addr, Matrix: &matrix, Roles: roles}
}

// IsSecurified reports whether the entity is governed by a matrix.
func (e Entity) IsSecurified() bool {
	return e.Matrix != nil
}

// ExercisedRoles returns the roles exercised for this operation.
func (e Entity) ExercisedRoles() []Role {
	if e.Matrix == nil {
		return nil
	}

	if len(e.Roles) > 0 {
		return e.Roles
	}

	var roles []Role

	for _, r := range AllRoles {
		if !e.Matrix.Role(r).IsEmpty() {
			roles = append(roles, r)
		}
	}

	return roles
}

// AccessPolicy returns the policy governing the entity.
func (e Entity) AccessPolicy() AccessPolicy {
	if e.Policy != nil {
		return *e.Policy
	}

	return DefaultPolicy(e.ExercisedRoles())
}

// Validate checks the entity is either unsecurified or has valid exercised roles.
func (e Entity) Validate() error {
	if e.Address == "" {
		return fmt.Errorf("entity has no address")
	}

	if e.Unsecurified != nil && e.Matrix != nil {
		return fmt.Errorf("entity %s is both unsecurified and securified", e.Address)
	}

	if e.Unsecurified != nil {
		return nil
	}

	if e.Matrix == nil {
		return fmt.Errorf("entity %s has no security state", e.Address)
	}

	roles := e.ExercisedRoles()
	if len(roles) == 0 {
		return fmt.Errorf("entity %s: %w", e.Address, ErrNoRoles)
	}

	for _, r := range roles {
		if err := e.Matrix.Role(r).Validate(); err != nil {
			return fmt.Errorf("entity %s role %s:\n%w", e.Address, r, err)
		}
	}

	return e.AccessPolicy().Validate(roles)
}

// Resolver resolves entity addresses to their security configuration.
type Resolver interface {
	Resolve(addr factor.Address) (Entity, error)
}

// StaticResolver is a Resolver backed by a map.
type StaticResolver map[factor.Address]Entity

// Resolve returns the entity for addr or ErrUnknownEntity.
func (r StaticResolver) Resolve(addr factor.Address) (Entity, error) {
	e, ok := r[addr]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, addr)
	}

	return e, nil
}
