package petition

import (
	"errors"
	"testing"

	"FactorSign/internal/factor"
	"FactorSign/internal/security"
)

// TestTransactionSharedFactorSource tests that a signature for one signable
// never lands in another signable's petition, even when both reference the
// same factor source.
func TestTransactionSharedFactorSource(t *testing.T) {
	shared := testInstance(factor.KindLedger, "shared")
	tx1, tx2 := testTx("tx1"), testTx("tx2")

	p1, _ := NewForTransaction(tx1, NewUnsecurifiedEntity(tx1, "acc", shared))
	p2, _ := NewForTransaction(tx2, NewUnsecurifiedEntity(tx2, "acc", shared))

	sig := testSign(tx1, "acc", shared)

	results := []bool{p1.AddSignatureIfRelevant(sig), p2.AddSignatureIfRelevant(sig)}
	if !results[0] || results[1] {
		t.Fatalf("fan-out mutated the wrong petitions: %v", results)
	}

	if got := p1.Status(); got != StatusSuccess {
		t.Errorf("tx1: got %s, want success", got)
	}

	if got := p2.Status(); got != StatusInProgress {
		t.Errorf("tx2: got %s, want in_progress", got)
	}

	if len(p2.AllSignatures()) != 0 {
		t.Error("tx2 should hold no signatures")
	}
}

// TestTransactionFold tests that all entities must succeed and one failure fails.
func TestTransactionFold(t *testing.T) {
	a := testInstance(factor.KindDevice, "a")
	b := testInstance(factor.KindDevice, "b")
	tx := testTx("tx")

	p, err := NewForTransaction(tx,
		NewUnsecurifiedEntity(tx, "acc_a", a),
		NewUnsecurifiedEntity(tx, "acc_b", b),
	)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}

	p.AddSignatureIfRelevant(testSign(tx, "acc_a", a))

	if got := p.Status(); got != StatusInProgress {
		t.Fatalf("one of two entities: got %s, want in_progress", got)
	}

	p.NeglectIfReferenced(failed(b))

	if got := p.Status(); got != StatusFail {
		t.Fatalf("one entity failed: got %s, want fail", got)
	}
}

// TestTransactionInvalidIfNeglected tests simulation at the signable level.
func TestTransactionInvalidIfNeglected(t *testing.T) {
	a := testInstance(factor.KindDevice, "a")
	b := testInstance(factor.KindLedger, "b")
	tx := testTx("tx")

	p, _ := NewForTransaction(tx,
		NewUnsecurifiedEntity(tx, "acc_a", a),
		NewUnsecurifiedEntity(tx, "acc_b", b),
	)

	got := p.InvalidIfNeglected(sources(b))
	if len(got) != 1 || got[0] != "acc_b" {
		t.Fatalf("got %v, want [acc_b]", got)
	}

	if p.Status() != StatusInProgress {
		t.Fatal("simulation should not change the real status")
	}

	if got := p.StatusIfNeglected(sources(b)); got != StatusFail {
		t.Fatalf("got %s, want fail", got)
	}
}

// TestTransactionOutstandingFor tests outstanding instances per source.
func TestTransactionOutstandingFor(t *testing.T) {
	a := testInstance(factor.KindDevice, "a")
	tx := testTx("tx")

	p, _ := NewForTransaction(tx, NewUnsecurifiedEntity(tx, "acc", a))

	got := p.OutstandingFor(a.Source)
	if len(got) != 1 || got[0].Owner != "acc" {
		t.Fatalf("unexpected outstanding: %v", got)
	}

	p.AddSignatureIfRelevant(testSign(tx, "acc", a))

	if got := p.OutstandingFor(a.Source); len(got) != 0 {
		t.Fatalf("finished signable should need nothing, got %v", got)
	}
}

// TestNewForTransactionRejects tests construction errors.
func TestNewForTransactionRejects(t *testing.T) {
	a := testInstance(factor.KindDevice, "a")
	tx := testTx("tx")

	if _, err := NewForTransaction[testID](tx); err == nil {
		t.Error("no entities should be rejected")
	}

	if _, err := NewForTransaction(tx, NewUnsecurifiedEntity(testTx("other"), "acc", a)); err == nil {
		t.Error("entity for another payload should be rejected")
	}

	if _, err := NewForTransaction(tx,
		NewUnsecurifiedEntity(tx, "acc", a),
		NewUnsecurifiedEntity(tx, "acc", a),
	); err == nil {
		t.Error("duplicate entity should be rejected")
	}
}

// TestBuildForTransactions tests building petitions through a resolver.
func TestBuildForTransactions(t *testing.T) {
	a := testInstance(factor.KindDevice, "a")
	resolver := security.StaticResolver{"acc": security.NewUnsecurified("acc", a)}

	reqs := []Request[testID]{
		{Payload: testTx("tx1"), Signers: []factor.Address{"acc"}},
		{Payload: testTx("tx2"), Signers: []factor.Address{"acc"}},
	}

	out, err := BuildForTransactions(reqs, resolver)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("expected 2 petitions, got %d", len(out))
	}

	_, err = BuildForTransactions([]Request[testID]{
		{Payload: testTx("tx1"), Signers: []factor.Address{"unknown"}},
	}, resolver)
	if !errors.Is(err, security.ErrUnknownEntity) {
		t.Errorf("got %v, want ErrUnknownEntity", err)
	}

	_, err = BuildForTransactions([]Request[testID]{reqs[0], reqs[0]}, resolver)
	if err == nil {
		t.Error("duplicate payload should be rejected")
	}
}

// TestTransactionNeglectSkipsUsedPetitions tests that neglecting a source
// leaves petitions it already signed untouched.
func TestTransactionNeglectSkipsUsedPetitions(t *testing.T) {
	shared := testInstance(factor.KindLedger, "shared")
	tx := testTx("tx")

	p, _ := NewForTransaction(tx,
		NewUnsecurifiedEntity(tx, "acc_a", shared),
		NewUnsecurifiedEntity(tx, "acc_b", shared),
	)

	p.AddSignatureIfRelevant(testSign(tx, "acc_a", shared))

	if !p.NeglectIfReferenced(failed(shared)) {
		t.Fatal("acc_b should record the neglect")
	}

	a, _ := p.Entity("acc_a")
	if a.Status() != StatusSuccess {
		t.Errorf("acc_a: got %s, want success", a.Status())
	}

	failedEntities := p.FailedEntities()
	if len(failedEntities) != 1 || failedEntities[0] != "acc_b" {
		t.Fatalf("got %v, want [acc_b]", failedEntities)
	}
}

// TestTransactionUnusedFor tests that finished entities still expose unused instances.
func TestTransactionUnusedFor(t *testing.T) {
	tx := testTx("tx")
	primary := testInstances("p1", "p2")

	m := security.Matrix{
		Primary: security.FactorList{Threshold: 1, ThresholdFactors: primary},
	}

	e, err := NewForEntity(tx, security.NewSecurified("acc", m))
	if err != nil {
		t.Fatalf("new entity: %v", err)
	}

	p, _ := NewForTransaction(tx, e)
	p.AddSignatureIfRelevant(testSign(tx, "acc", primary[0]))

	if p.Status() != StatusSuccess {
		t.Fatalf("got %s, want success", p.Status())
	}

	if len(p.OutstandingFor(primary[1].Source)) != 0 {
		t.Error("finished signable should have nothing outstanding")
	}

	if got := p.UnusedFor(primary[1].Source); len(got) != 1 {
		t.Fatalf("expected 1 unused instance, got %d", len(got))
	}
}

// TestTransactionTryAddRejectsRecordedSource tests that the error-returning
// path reports a source recorded twice instead of panicking.
func TestTransactionTryAddRejectsRecordedSource(t *testing.T) {
	a := testInstance(factor.KindDevice, "a")
	b := testInstance(factor.KindLedger, "b")
	tx := testTx("tx")

	p, _ := NewForTransaction(tx,
		NewUnsecurifiedEntity(tx, "acc_a", a),
		NewUnsecurifiedEntity(tx, "acc_b", b),
	)

	sig := testSign(tx, "acc_a", a)

	added, err := p.TryAddSignatureIfRelevant(sig)
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}

	added, err = p.TryAddSignatureIfRelevant(sig)
	if !errors.Is(err, ErrFactorSourceAlreadyUsed) {
		t.Fatalf("second add: got %v, want ErrFactorSourceAlreadyUsed", err)
	}

	if added {
		t.Error("rejected signature reported as added")
	}

	if _, err := p.TryNeglectIfReferenced(skipped(b)); err != nil {
		t.Fatalf("neglect b: %v", err)
	}

	if _, err := p.TryAddSignatureIfRelevant(testSign(tx, "acc_b", b)); !errors.Is(err, ErrFactorSourceAlreadyUsed) {
		t.Fatalf("sign after neglect: got %v, want ErrFactorSourceAlreadyUsed", err)
	}

	if got := len(p.AllSignatures()); got != 1 {
		t.Errorf("got %d signatures, want 1", got)
	}
}

// TestEntityTryAddAcrossRoles tests the error path through role petitions.
func TestEntityTryAddAcrossRoles(t *testing.T) {
	tx := testTx("tx")
	e, primary, _ := securifiedEntity(t, tx)

	sig := testSign(tx, "acc", primary[1])
	e.AddSignatureIfRelevant(sig)

	if _, err := e.TryAddSignatureIfRelevant(sig); !errors.Is(err, ErrFactorSourceAlreadyUsed) {
		t.Fatalf("got %v, want ErrFactorSourceAlreadyUsed", err)
	}

	neglected, err := e.TryNeglectIfReferenced(failed(primary[1]))
	if err != nil || neglected {
		t.Errorf("neglect of a signed source: neglected=%v err=%v", neglected, err)
	}
}
