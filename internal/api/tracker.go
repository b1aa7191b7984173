package api

import (
	"time"

	"FactorSign/internal/collector"
	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"

	"github.com/sasha-s/go-deadlock"
)

// maxNeglects bounds the neglect events kept for /progress.
const maxNeglects = 256

// Status is the JSON body of GET /progress.
type Status struct {
	Batch       string    `json:"batch"`
	StartedAt   time.Time `json:"startedAt"`
	Round       int       `json:"round"`
	Kind        string    `json:"kind,omitempty"`
	Signables   int       `json:"signables"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	InProgress  int       `json:"inProgress"`
	Signatures  int       `json:"signatures"`
	Neglected   int       `json:"neglected"`
	Done        bool      `json:"done"`
	Termination string    `json:"termination,omitempty"`

	// Neglects are the most recent neglect events, oldest first.
	Neglects []NeglectEvent `json:"neglects"`
}

// NeglectEvent is one neglect recorded against a signable.
type NeglectEvent struct {
	Payload string `json:"payload"`
	Source  string `json:"source"`
	Reason  string `json:"reason"`
}

// Tracker follows a collector run and serves its state to the API.
// It implements collector.Observer.
type Tracker[ID signable.ID] struct {
	mu     deadlock.RWMutex
	status Status
}

// NewTracker creates a tracker for a batch of n signables.
func NewTracker[ID signable.ID](batch string, n int) *Tracker[ID] {
	return &Tracker[ID]{status: Status{
		Batch:      batch,
		StartedAt:  time.Now().UTC(),
		Signables:  n,
		InProgress: n,
		Neglects:   []NeglectEvent{},
	}}
}

// OnSignature counts sig.
func (t *Tracker[ID]) OnSignature(signature.HDSignature[ID]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Signatures++
}

// OnNeglect records n against payload.
func (t *Tracker[ID]) OnNeglect(payload ID, n factor.NeglectedFactor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Neglects = append(t.status.Neglects, NeglectEvent{
		Payload: payload.String(),
		Source:  n.Source.String(),
		Reason:  n.Reason.String(),
	})

	if over := len(t.status.Neglects) - maxNeglects; over > 0 {
		t.status.Neglects = t.status.Neglects[over:]
	}
}

// OnRound copies the round counters.
func (t *Tracker[ID]) OnRound(p collector.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Round = p.Round
	t.status.Kind = p.Kind.String()
	t.status.Succeeded = p.Succeeded
	t.status.Failed = p.Failed
	t.status.InProgress = p.InProgress
	t.status.Neglected = p.Neglected
}

// Finish records the final outcome of the run.
func (t *Tracker[ID]) Finish(out *collector.Outcome[ID]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Done = true
	t.status.Termination = out.Termination.String()
	t.status.Round = out.Rounds
	t.status.Succeeded = len(out.Successful())
	t.status.Failed = len(out.Failed())
	t.status.InProgress = len(out.Incomplete())
	t.status.Neglected = len(out.Neglected)
}

// Status returns a copy of the current state.
func (t *Tracker[ID]) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	s.Neglects = append([]NeglectEvent(nil), t.status.Neglects...)

	return s
}
