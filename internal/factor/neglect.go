package factor

import "fmt"

// NeglectReason tells why a factor did not contribute a signature.
type NeglectReason uint8

const (
	// NeglectUserSkipped means the user chose to skip the factor source.
	NeglectUserSkipped NeglectReason = iota + 1

	// NeglectFailure means the factor source failed to sign.
	NeglectFailure

	// NeglectSimulation marks a dry-run neglect used for feasibility checks.
	// It is the only reason allowed to hit a factor source more than once.
	NeglectSimulation
)

// String returns the reason name.
func (r NeglectReason) String() string {
	switch r {
	case NeglectUserSkipped:
		return "user_skipped"
	case NeglectFailure:
		return "failure"
	case NeglectSimulation:
		return "simulation"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// NeglectedFactor is a factor source that did not sign, as reported to the collector.
type NeglectedFactor struct {
	Reason NeglectReason // Reason is why the factor source did not sign
	Source SourceID      // Source is the neglected factor source
}

// String returns a short description for logs.
func (n NeglectedFactor) String() string {
	return fmt.Sprintf("%s(%s)", n.Reason, n.Source)
}

// NeglectedInstance is a factor instance that did not sign, as recorded by a petition.
type NeglectedInstance struct {
	Reason   NeglectReason // Reason is why the instance did not sign
	Instance HDInstance    // Instance is the neglected factor instance
}

// Source returns the factor source of the neglected instance.
func (n NeglectedInstance) Source() SourceID {
	return n.Instance.Source
}

// Factor drops the instance detail.
func (n NeglectedInstance) Factor() NeglectedFactor {
	return NeglectedFactor{Reason: n.Reason, Source: n.Instance.Source}
}
