// Package collector drives interactive signing of a batch of signables.
//
// A Collector owns the petitions of a batch and an index from factor source
// to the petitions that reference it. It repeatedly picks the first factor
// source kind, in signing order, with sources still able to move a signable
// forward, hands them to the interactor registered for the kind and applies
// the result: signatures to the signable they were requested for, neglects to
// every petition referencing the source. Each factor source is dispatched at
// most once per run.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FactorSign/internal/factor"
	"FactorSign/internal/logger"
	"FactorSign/internal/petition"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// Collector collects the signatures of one batch.
// Collect must not be called concurrently.
type Collector[ID signable.ID] struct {
	petitions   []*petition.ForTransaction[ID]                     // petitions in batch order
	byPayload   map[ID]*petition.ForTransaction[ID]                // byPayload indexes petitions by signable
	index       map[factor.SourceID][]*petition.ForTransaction[ID] // index lists the petitions referencing each source
	sources     map[factor.Kind][]factor.SourceID                  // sources groups referenced sources by kind
	interactors *Interactors[ID]                                   // interactors handle the kinds
	cfg         config[ID]                                         // cfg holds the options

	neglected []factor.NeglectedFactor     // neglected in the order they happened
	seen      map[factor.SourceID]struct{} // seen marks sources already in neglected
	rounds    int                          // rounds counts dispatches
}

// New creates a collector for petitions. Every signable must appear once.
func New[ID signable.ID](petitions []*petition.ForTransaction[ID], interactors *Interactors[ID], opts ...Option[ID]) (*Collector[ID], error) {
	if len(petitions) == 0 {
		return nil, fmt.Errorf("no signables to collect signatures for")
	}

	c := &Collector[ID]{
		petitions:   petitions,
		byPayload:   make(map[ID]*petition.ForTransaction[ID], len(petitions)),
		index:       make(map[factor.SourceID][]*petition.ForTransaction[ID]),
		sources:     make(map[factor.Kind][]factor.SourceID),
		interactors: interactors,
		seen:        make(map[factor.SourceID]struct{}),
	}

	for _, opt := range opts {
		opt(&c.cfg)
	}

	for _, p := range petitions {
		if _, dup := c.byPayload[p.Payload()]; dup {
			return nil, fmt.Errorf("signable %s listed twice", p.Payload())
		}

		c.byPayload[p.Payload()] = p

		for _, id := range p.ReferencedFactorSources() {
			if _, ok := c.index[id]; !ok {
				c.sources[id.Kind] = append(c.sources[id.Kind], id)
			}

			c.index[id] = append(c.index[id], p)
		}

		// Neglects recorded before the run, e.g. by a journal replay.
		for _, n := range p.AllNeglected() {
			if _, ok := c.seen[n.Source()]; ok {
				continue
			}

			c.seen[n.Source()] = struct{}{}
			c.neglected = append(c.neglected, n.Factor())
		}
	}

	return c, nil
}

// Collect builds a collector and runs it once.
func Collect[ID signable.ID](ctx context.Context, petitions []*petition.ForTransaction[ID], interactors *Interactors[ID], opts ...Option[ID]) (*Outcome[ID], error) {
	c, err := New(petitions, interactors, opts...)
	if err != nil {
		return nil, err
	}

	return c.Collect(ctx), nil
}

// Sources returns the number of distinct factor sources referenced by the batch.
func (c *Collector[ID]) Sources() int {
	return len(c.index)
}

// Collect runs the dispatch loop until every signable has a verdict, the
// finish-early strategy stops the run, no factor source can make progress or
// ctx is cancelled.
func (c *Collector[ID]) Collect(ctx context.Context) *Outcome[ID] {
	start := time.Now()
	dispatched := make(map[factor.SourceID]struct{})

	logger.Info("collecting signatures",
		"signables", len(c.petitions),
		"sources", len(c.index),
	)

	for {
		if reason, stop := c.finished(); stop {
			return c.outcome(reason, start)
		}

		if ctx.Err() != nil {
			return c.outcome(TerminationCancelled, start)
		}

		kind, pending := c.next(dispatched)
		if len(pending) == 0 {
			if c.progress(0).InProgress == 0 {
				return c.outcome(TerminationCompleted, start)
			}

			return c.outcome(TerminationNoProgress, start)
		}

		c.rounds++
		c.dispatch(ctx, kind, pending, dispatched)

		p := c.progress(kind)
		for _, o := range c.cfg.observers {
			o.OnRound(p)
		}
	}
}

// finished applies the termination rules that do not depend on pending sources.
func (c *Collector[ID]) finished() (Termination, bool) {
	p := c.progress(0)

	if p.Failed > 0 && c.cfg.whenSomeInvalid == SomeInvalidFinish {
		return TerminationFinishedEarly, true
	}

	if p.InProgress > 0 {
		return 0, false
	}

	if p.Failed == 0 && c.cfg.whenAllValid == AllValidContinue {
		return 0, false
	}

	return TerminationCompleted, true
}

// next returns the first kind, in signing order, with sources worth asking.
func (c *Collector[ID]) next(dispatched map[factor.SourceID]struct{}) (factor.Kind, []factor.SourceID) {
	for _, kind := range factor.AllKinds {
		var pending []factor.SourceID

		for _, id := range c.sources[kind] {
			if _, done := dispatched[id]; done {
				continue
			}

			if c.needed(id) {
				pending = append(pending, id)
			}
		}

		if len(pending) > 0 {
			return kind, pending
		}
	}

	return 0, nil
}

// needed reports whether some petition still wants a signature from id.
func (c *Collector[ID]) needed(id factor.SourceID) bool {
	for _, p := range c.index[id] {
		if len(c.wanted(p, id)) > 0 {
			return true
		}
	}

	return false
}

// wanted returns the owned instances of id that p should be signed with.
func (c *Collector[ID]) wanted(p *petition.ForTransaction[ID], id factor.SourceID) []factor.OwnedInstance {
	if c.cfg.whenAllValid == AllValidContinue {
		return p.UnusedFor(id)
	}

	return p.OutstandingFor(id)
}

// request builds what id is asked to sign, with the signables that would
// become invalid if it were skipped.
func (c *Collector[ID]) request(id factor.SourceID) SourceRequest[ID] {
	req := SourceRequest[ID]{Source: id}
	skip := map[factor.SourceID]struct{}{id: {}}

	for _, p := range c.index[id] {
		owned := c.wanted(p, id)
		if len(owned) == 0 {
			continue
		}

		req.Inputs = append(req.Inputs, SignableInput[ID]{Payload: p.Payload(), Owned: owned})

		if entities := p.InvalidIfNeglected(skip); len(entities) > 0 {
			req.Invalid = append(req.Invalid, InvalidIfSkipped[ID]{Payload: p.Payload(), Entities: entities})
		}
	}

	return req
}

// dispatch hands pending sources of kind to its interactor and applies the results.
func (c *Collector[ID]) dispatch(ctx context.Context, kind factor.Kind, pending []factor.SourceID, dispatched map[factor.SourceID]struct{}) {
	poly, mono := c.interactors.lookup(kind)

	switch {
	case poly != nil:
		c.dispatchPoly(ctx, kind, poly, pending, dispatched)
	case mono != nil:
		c.dispatchMono(ctx, kind, mono, pending, dispatched)
	default:
		logger.Warn("no interactor for factor source kind",
			"kind", kind,
			"sources", len(pending),
		)

		for _, id := range pending {
			dispatched[id] = struct{}{}
			c.neglectSource(id, factor.NeglectFailure)
		}
	}
}

func (c *Collector[ID]) dispatchPoly(ctx context.Context, kind factor.Kind, in PolyInteractor[ID], pending []factor.SourceID, dispatched map[factor.SourceID]struct{}) {
	req := PolyRequest[ID]{Kind: kind}

	for _, id := range pending {
		dispatched[id] = struct{}{}

		if r := c.request(id); len(r.Inputs) > 0 {
			req.Sources = append(req.Sources, r)
		}
	}

	if len(req.Sources) == 0 {
		return
	}

	logger.Debug("dispatching poly request",
		"kind", kind,
		"sources", len(req.Sources),
	)

	resp, err := in.SignPoly(ctx, req)

	skipped := make(map[factor.SourceID]struct{}, len(resp.Skipped))
	for _, id := range resp.Skipped {
		skipped[id] = struct{}{}
	}

	c.apply(ctx, req.Sources, resp.Signatures, skipped, err)
}

func (c *Collector[ID]) dispatchMono(ctx context.Context, kind factor.Kind, in MonoInteractor[ID], pending []factor.SourceID, dispatched map[factor.SourceID]struct{}) {
	for _, id := range pending {
		if ctx.Err() != nil {
			return
		}

		dispatched[id] = struct{}{}

		// earlier sources of this round may have finished the signables
		r := c.request(id)
		if len(r.Inputs) == 0 {
			continue
		}

		logger.Debug("dispatching mono request",
			"kind", kind,
			"source", id,
			"signatures", r.Instances(),
		)

		resp, err := in.SignMono(ctx, MonoRequest[ID]{Kind: kind, Source: r})

		skipped := make(map[factor.SourceID]struct{}, 1)
		if resp.Skipped {
			skipped[id] = struct{}{}
		}

		c.apply(ctx, []SourceRequest[ID]{r}, resp.Signatures, skipped, err)
	}
}

// apply fans the interactor result out to the petitions.
func (c *Collector[ID]) apply(ctx context.Context, reqs []SourceRequest[ID], sigs []signature.HDSignature[ID], skipped map[factor.SourceID]struct{}, err error) {
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("interactor interrupted by cancellation", "error", err)
			return
		}

		reason := factor.NeglectFailure
		if errors.Is(err, ErrUserSkipped) {
			reason = factor.NeglectUserSkipped
		}

		logger.Warn("interactor failed",
			"sources", len(reqs),
			"reason", reason,
			"error", err,
		)

		for _, r := range reqs {
			c.neglectSource(r.Source, reason)
		}

		return
	}

	expected := make(map[signature.Key[ID]]struct{})

	for _, r := range reqs {
		for _, in := range r.Inputs {
			for _, owned := range in.Owned {
				expected[signature.NewKey(r.Source, in.Payload, owned)] = struct{}{}
			}
		}
	}

	for _, sig := range sigs {
		c.accept(sig, expected, skipped)
	}

	for _, r := range reqs {
		if _, ok := skipped[r.Source]; ok {
			c.neglectSource(r.Source, factor.NeglectUserSkipped)
			continue
		}

		var missing []ID

		for _, in := range r.Inputs {
			for _, owned := range in.Owned {
				if _, ok := expected[signature.NewKey(r.Source, in.Payload, owned)]; ok {
					missing = append(missing, in.Payload)
					break
				}
			}
		}

		if len(missing) > 0 {
			logger.Warn("factor source did not sign every requested signable",
				"source", r.Source,
				"missing", len(missing),
			)

			c.neglectPayloads(r.Source, factor.NeglectFailure, missing)
		}
	}
}

// accept records sig if it was requested. Accepted signatures leave expected.
func (c *Collector[ID]) accept(sig signature.HDSignature[ID], expected map[signature.Key[ID]]struct{}, skipped map[factor.SourceID]struct{}) {
	k := sig.Key()

	if _, ok := expected[k]; !ok {
		logger.Warn("dropping unsolicited signature",
			"source", sig.Source(),
			"payload", sig.PayloadID(),
			"owner", sig.Owned().Owner,
		)

		return
	}

	if _, ok := skipped[k.Source]; ok {
		logger.Warn("dropping signature of skipped factor source", "source", k.Source)
		return
	}

	if c.cfg.verify {
		if err := sig.Verify(); err != nil {
			logger.Warn("dropping invalid signature",
				"source", sig.Source(),
				"payload", sig.PayloadID(),
				"error", err,
			)

			return
		}
	}

	if !c.byPayload[k.Payload].AddSignatureIfRelevant(sig) {
		logger.Warn("signature key does not match requested instance",
			"source", sig.Source(),
			"payload", sig.PayloadID(),
		)

		return
	}

	delete(expected, k)

	for _, o := range c.cfg.observers {
		o.OnSignature(sig)
	}
}

// neglectSource records the neglect of id on every petition referencing it.
func (c *Collector[ID]) neglectSource(id factor.SourceID, reason factor.NeglectReason) {
	payloads := make([]ID, 0, len(c.index[id]))
	for _, p := range c.index[id] {
		payloads = append(payloads, p.Payload())
	}

	c.neglectPayloads(id, reason, payloads)
}

// neglectPayloads records the neglect of id on the petitions of payloads.
func (c *Collector[ID]) neglectPayloads(id factor.SourceID, reason factor.NeglectReason, payloads []ID) {
	n := factor.NeglectedFactor{Reason: reason, Source: id}

	if _, ok := c.seen[id]; !ok {
		c.seen[id] = struct{}{}
		c.neglected = append(c.neglected, n)
	}

	for _, payload := range payloads {
		if !c.byPayload[payload].NeglectIfReferenced(n) {
			continue
		}

		for _, o := range c.cfg.observers {
			o.OnNeglect(payload, n)
		}
	}
}

// progress counts signables per status.
func (c *Collector[ID]) progress(kind factor.Kind) Progress {
	p := Progress{
		Round:     c.rounds,
		Kind:      kind,
		Signables: len(c.petitions),
		Neglected: len(c.neglected),
	}

	for _, t := range c.petitions {
		switch t.Status() {
		case petition.StatusSuccess:
			p.Succeeded++
		case petition.StatusFail:
			p.Failed++
		default:
			p.InProgress++
		}
	}

	return p
}

// outcome assembles the result of the run.
func (c *Collector[ID]) outcome(reason Termination, start time.Time) *Outcome[ID] {
	out := &Outcome[ID]{
		Signables:   make([]SignableOutcome[ID], 0, len(c.petitions)),
		Neglected:   append([]factor.NeglectedFactor(nil), c.neglected...),
		Termination: reason,
		Rounds:      c.rounds,
	}

	for _, p := range c.petitions {
		s := SignableOutcome[ID]{
			Payload:    p.Payload(),
			Signatures: p.AllSignatures(),
			Neglected:  p.AllNeglected(),
		}

		switch p.Status() {
		case petition.StatusSuccess:
			s.Verdict = VerdictSuccess
		case petition.StatusFail:
			s.Verdict = VerdictFailure
			s.FailedEntities = p.FailedEntities()
		default:
			s.Verdict = VerdictIncomplete
		}

		out.Signables = append(out.Signables, s)
	}

	logger.Info("signature collection finished",
		"termination", reason,
		"rounds", c.rounds,
		"succeeded", len(out.Successful()),
		"failed", len(out.Failed()),
		"incomplete", len(out.Incomplete()),
		logger.Timed(start),
	)

	return out
}
