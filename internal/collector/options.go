package collector

import (
	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

// WhenAllValid decides what happens once every signable is authorized.
type WhenAllValid uint8

const (
	// AllValidFinish stops as soon as every signable is authorized.
	AllValidFinish WhenAllValid = iota

	// AllValidContinue keeps asking the remaining factor sources for
	// signatures on already authorized signables.
	AllValidContinue
)

// WhenSomeInvalid decides what happens once a signable can no longer be authorized.
type WhenSomeInvalid uint8

const (
	// SomeInvalidContinue keeps collecting for the remaining signables.
	SomeInvalidContinue WhenSomeInvalid = iota

	// SomeInvalidFinish stops as soon as one signable failed.
	SomeInvalidFinish
)

// Progress is a snapshot of a run, reported after every round.
type Progress struct {
	Round      int         // Round is the number of dispatches so far
	Kind       factor.Kind // Kind is the factor source kind of the last round
	Signables  int         // Signables is the batch size
	Succeeded  int         // Succeeded counts authorized signables
	Failed     int         // Failed counts failed signables
	InProgress int         // InProgress counts signables without a verdict
	Neglected  int         // Neglected counts neglected factor sources
}

// Observer is notified of every change the collector applies. Calls happen on
// the goroutine running Collect.
type Observer[ID signable.ID] interface {
	// OnSignature is called for every signature accepted into a petition.
	OnSignature(sig signature.HDSignature[ID])

	// OnNeglect is called when n is recorded against the petitions of payload.
	OnNeglect(payload ID, n factor.NeglectedFactor)

	// OnRound is called after every round.
	OnRound(p Progress)
}

type config[ID signable.ID] struct {
	verify          bool
	whenAllValid    WhenAllValid
	whenSomeInvalid WhenSomeInvalid
	observers       []Observer[ID]
}

// Option configures a Collector.
type Option[ID signable.ID] func(*config[ID])

// WithSignatureVerification verifies every returned signature against its
// key and drops the ones that do not verify.
func WithSignatureVerification[ID signable.ID]() Option[ID] {
	return func(c *config[ID]) {
		c.verify = true
	}
}

// WithFinishEarly sets the finish-early strategy.
func WithFinishEarly[ID signable.ID](allValid WhenAllValid, someInvalid WhenSomeInvalid) Option[ID] {
	return func(c *config[ID]) {
		c.whenAllValid = allValid
		c.whenSomeInvalid = someInvalid
	}
}

// WithObserver adds an observer. Observers are called in registration order.
func WithObserver[ID signable.ID](o Observer[ID]) Option[ID] {
	return func(c *config[ID]) {
		c.observers = append(c.observers, o)
	}
}
