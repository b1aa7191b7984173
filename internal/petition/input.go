package petition

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
)

// Status is the verdict of a petition.
type Status uint8

const (
	// StatusInProgress means the outcome still depends on outstanding factors.
	StatusInProgress Status = iota

	// StatusSuccess means enough factors signed.
	StatusSuccess

	// StatusFail means success is no longer reachable.
	StatusFail
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// IsFinished reports whether the status is terminal.
func (s Status) IsFinished() bool {
	return s == StatusSuccess || s == StatusFail
}

// ListKind tells how a factor list is satisfied.
type ListKind uint8

const (
	// ListThreshold needs Threshold of the factors to sign.
	ListThreshold ListKind = iota + 1

	// ListOverride needs any one factor to sign.
	ListOverride
)

// String returns the list kind name.
func (k ListKind) String() string {
	switch k {
	case ListThreshold:
		return "threshold"
	case ListOverride:
		return "override"
	default:
		return fmt.Sprintf("list(%d)", uint8(k))
	}
}

// Input describes what a petition requires. It is immutable.
type Input struct {
	kind      ListKind
	factors   []factor.HDInstance
	index     map[factor.SourceID]int
	threshold uint8
}

// newInput validates and creates an Input. Factors must be non-empty with
// distinct factor sources, and the threshold must not exceed the factor count.
func newInput(kind ListKind, factors []factor.HDInstance, threshold uint8) (Input, bool) {
	if len(factors) == 0 || int(threshold) > len(factors) {
		return Input{}, false
	}

	in := Input{
		kind:      kind,
		factors:   make([]factor.HDInstance, len(factors)),
		index:     make(map[factor.SourceID]int, len(factors)),
		threshold: threshold,
	}

	for i, f := range factors {
		if _, dup := in.index[f.Source]; dup {
			return Input{}, false
		}

		in.factors[i] = f
		in.index[f.Source] = i
	}

	return in, true
}

// Kind returns the list kind.
func (in Input) Kind() ListKind {
	return in.kind
}

// Threshold returns the threshold; meaningful for threshold lists only.
func (in Input) Threshold() uint8 {
	return in.threshold
}

// Factors returns a copy of the candidate factor instances.
func (in Input) Factors() []factor.HDInstance {
	out := make([]factor.HDInstance, len(in.factors))
	copy(out, in.factors)

	return out
}

// References reports whether id is one of the candidate factor sources.
func (in Input) References(id factor.SourceID) bool {
	_, ok := in.index[id]
	return ok
}

// instanceFor returns the candidate instance derived from id.
func (in Input) instanceFor(id factor.SourceID) (factor.HDInstance, bool) {
	i, ok := in.index[id]
	if !ok {
		return factor.HDInstance{}, false
	}

	return in.factors[i], true
}

// contains reports whether inst is one of the candidate instances.
func (in Input) contains(inst factor.HDInstance) bool {
	candidate, ok := in.instanceFor(inst.Source)
	return ok && candidate.Equal(inst)
}

// tally counts signed, neglected and remaining candidate factors in snap.
// A factor both signed and neglected (only possible through a simulation)
// counts as signed.
func tally[ID signable.ID](in Input, snap Snapshot[ID]) (signed, neglected, remaining int) {
	for _, f := range in.factors {
		switch {
		case snap.HasSigned(f.Source):
			signed++
		case snap.HasNeglected(f.Source):
			neglected++
		}
	}

	remaining = len(in.factors) - signed - neglected

	return signed, neglected, remaining
}

// evaluate computes the status of in against snap.
func evaluate[ID signable.ID](in Input, snap Snapshot[ID]) Status {
	signed, _, remaining := tally(in, snap)

	switch in.kind {
	case ListThreshold:
		threshold := int(in.threshold)

		if signed >= threshold {
			return StatusSuccess
		}

		if signed+remaining < threshold {
			return StatusFail
		}

	case ListOverride:
		if signed >= 1 {
			return StatusSuccess
		}

		if remaining == 0 {
			return StatusFail
		}
	}

	return StatusInProgress
}
