package collector

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// Termination tells why a collection run stopped.
type Termination uint8

const (
	// TerminationCompleted means every signable reached a final verdict.
	TerminationCompleted Termination = iota + 1

	// TerminationFinishedEarly means the finish-early strategy stopped the run.
	TerminationFinishedEarly

	// TerminationNoProgress means signables remain open but no factor source
	// can move them forward.
	TerminationNoProgress

	// TerminationCancelled means the context was cancelled.
	TerminationCancelled
)

// String returns the termination name.
func (t Termination) String() string {
	switch t {
	case TerminationCompleted:
		return "completed"
	case TerminationFinishedEarly:
		return "finished_early"
	case TerminationNoProgress:
		return "no_progress"
	case TerminationCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("termination(%d)", uint8(t))
	}
}

// Verdict is the final state of one signable.
type Verdict uint8

const (
	// VerdictSuccess means every entity authorized the signable.
	VerdictSuccess Verdict = iota + 1

	// VerdictFailure means at least one entity can no longer authorize it.
	VerdictFailure

	// VerdictIncomplete means the run stopped before a verdict was reached.
	VerdictIncomplete
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	case VerdictIncomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// SignableOutcome is the result for one signable.
type SignableOutcome[ID signable.ID] struct {
	Payload        ID                          // Payload is the signable
	Verdict        Verdict                     // Verdict is the final state
	Signatures     []signature.HDSignature[ID] // Signatures are all signatures collected for it
	Neglected      []factor.NeglectedInstance  // Neglected are the instances that did not sign
	FailedEntities []factor.Address            // FailedEntities are set when Verdict is VerdictFailure
}

// Outcome is the aggregate result of a collection run.
type Outcome[ID signable.ID] struct {
	Signables   []SignableOutcome[ID]    // Signables in batch order
	Neglected   []factor.NeglectedFactor // Neglected lists each neglected factor source once
	Termination Termination              // Termination tells why the run stopped
	Rounds      int                      // Rounds is the number of interactor dispatches
}

// Signable returns the outcome of id.
func (o *Outcome[ID]) Signable(id ID) (SignableOutcome[ID], bool) {
	for _, s := range o.Signables {
		if s.Payload == id {
			return s, true
		}
	}

	return SignableOutcome[ID]{}, false
}

// Successful returns the signables that were authorized.
func (o *Outcome[ID]) Successful() []SignableOutcome[ID] {
	return o.filter(VerdictSuccess)
}

// Failed returns the signables that can no longer be authorized.
func (o *Outcome[ID]) Failed() []SignableOutcome[ID] {
	return o.filter(VerdictFailure)
}

// Incomplete returns the signables left without a verdict.
func (o *Outcome[ID]) Incomplete() []SignableOutcome[ID] {
	return o.filter(VerdictIncomplete)
}

// AllValid reports whether every signable was authorized.
func (o *Outcome[ID]) AllValid() bool {
	return len(o.Successful()) == len(o.Signables)
}

// AllSignatures returns the signatures of the successful signables.
func (o *Outcome[ID]) AllSignatures() []signature.HDSignature[ID] {
	var out []signature.HDSignature[ID]
	for _, s := range o.Successful() {
		out = append(out, s.Signatures...)
	}

	return out
}

func (o *Outcome[ID]) filter(v Verdict) []SignableOutcome[ID] {
	var out []SignableOutcome[ID]

	for _, s := range o.Signables {
		if s.Verdict == v {
			out = append(out, s)
		}
	}

	return out
}
