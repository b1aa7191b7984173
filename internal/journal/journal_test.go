package journal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"FactorSign/internal/collector"
	"FactorSign/internal/factor"
	"FactorSign/internal/keyring"
	"FactorSign/internal/petition"
	"FactorSign/internal/signable"
	"FactorSign/internal/storage"
	"FactorSign/internal/types"
)

type testID = signable.IntentHash

func newStore(t *testing.T) *storage.Store {
	t.Helper()

	s, err := storage.Open(filepath.Join(t.TempDir(), "journal"), storage.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func newSource(t *testing.T, kind factor.Kind, name string) *keyring.Source {
	t.Helper()

	s, err := keyring.NewSource(kind, []byte("journal seed "+name))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	return s
}

func testHeader(id string) Header {
	return Header{
		ID:             id,
		CreatedAt:      time.Unix(1_700_000_000, 0).UTC(),
		ManifestDigest: [32]byte{1, 2, 3},
		Signables:      2,
	}
}

// fixture is two signables: tx1 signed by dev1 and tx2 signed by dev2.
type fixture struct {
	ring       *keyring.Keyring
	dev1, dev2 *keyring.Source
	tx1, tx2   testID
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		dev1: newSource(t, factor.KindDevice, "dev1"),
		dev2: newSource(t, factor.KindDevice, "dev2"),
		tx1:  signable.NewIntentHash([]byte("tx1")),
		tx2:  signable.NewIntentHash([]byte("tx2")),
	}
	f.ring = keyring.New(f.dev1, f.dev2)

	return f
}

func (f fixture) petitions(t *testing.T) []*petition.ForTransaction[testID] {
	t.Helper()

	i1, _ := f.dev1.Instance("m/0")
	i2, _ := f.dev2.Instance("m/0")

	p1, err := petition.NewForTransaction(f.tx1, petition.NewUnsecurifiedEntity(f.tx1, "acc1", i1))
	if err != nil {
		t.Fatalf("petition: %v", err)
	}

	p2, err := petition.NewForTransaction(f.tx2, petition.NewUnsecurifiedEntity(f.tx2, "acc2", i2))
	if err != nil {
		t.Fatalf("petition: %v", err)
	}

	return []*petition.ForTransaction[testID]{p1, p2}
}

// TestEntryEncoding tests that both entry kinds survive encoding.
func TestEntryEncoding(t *testing.T) {
	f := newFixture(t)
	inst, _ := f.dev1.Instance("m/0")

	sig, err := f.dev1.Sign(inst.Path, f.tx1[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	n := factor.NeglectedFactor{Reason: factor.NeglectUserSkipped, Source: f.dev2.ID()}

	entries := []Entry{
		{
			Kind:      types.EntryKindSignature,
			Payload:   f.tx1.Digest(),
			Owned:     factor.OwnedInstance{Owner: "acc1", Instance: inst},
			Signature: sig,
		},
		neglectEntry(f.tx2, n),
	}

	for _, want := range entries {
		got, err := decodeEntry(want.encode())
		if err != nil {
			t.Fatalf("%s: decode: %v", want.Kind, err)
		}

		if got.Kind != want.Kind || got.Payload != want.Payload || got.Source() != want.Source() {
			t.Fatalf("%s: got %+v, want %+v", want.Kind, got, want)
		}

		if got.Kind == types.EntryKindSignature {
			if !got.Owned.Equal(want.Owned) || !bytes.Equal(got.Signature.Bytes, want.Signature.Bytes) {
				t.Fatalf("signature entry mismatch: %+v", got)
			}
		} else if got.Neglect != want.Neglect {
			t.Fatalf("neglect entry mismatch: %+v", got)
		}
	}

	if _, err := decodeEntry([]byte{1, 2}); err == nil {
		t.Fatal("short buffer should fail")
	}
}

// TestJournalReplay tests that a journaled run restores the same statuses
// into fresh petitions.
func TestJournalReplay(t *testing.T) {
	store := newStore(t)
	f := newFixture(t)
	f.ring.Skip(f.dev2.ID())

	j, err := Open[testID](store, testHeader("batch-1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	out, err := collector.Collect(context.Background(), f.petitions(t),
		keyring.Interactors[testID](f.ring, factor.KindDevice),
		collector.WithObserver[testID](j),
	)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(out.Successful()) != 1 || len(out.Failed()) != 1 {
		t.Fatalf("unexpected outcome: %+v", out.Signables)
	}

	if err := j.Err(); err != nil {
		t.Fatalf("journal error: %v", err)
	}

	if j.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", j.Len())
	}

	fresh := f.petitions(t)

	r, err := Replay(store, "batch-1", fresh)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if r.Signatures != 1 || r.Neglects != 1 || r.Skipped != 0 {
		t.Fatalf("unexpected replay counts: %+v", r)
	}

	if fresh[0].Status() != petition.StatusSuccess {
		t.Errorf("tx1: got %s, want success", fresh[0].Status())
	}

	if fresh[1].Status() != petition.StatusFail {
		t.Errorf("tx2: got %s, want fail", fresh[1].Status())
	}
}

// TestReplaySkipsUnknownSignables tests entries for signables outside the batch.
func TestReplaySkipsUnknownSignables(t *testing.T) {
	store := newStore(t)
	f := newFixture(t)

	j, err := Open[testID](store, testHeader("batch-1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	j.OnNeglect(signable.NewIntentHash([]byte("other")), factor.NeglectedFactor{
		Reason: factor.NeglectFailure,
		Source: f.dev1.ID(),
	})

	r, err := Replay(store, "batch-1", f.petitions(t))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if r.Skipped != 1 || r.Neglects != 0 {
		t.Fatalf("unexpected replay counts: %+v", r)
	}

	if _, err := Replay(store, "missing", f.petitions(t)); !errors.Is(err, ErrUnknownBatch) {
		t.Fatalf("got %v, want ErrUnknownBatch", err)
	}
}

// TestReplayRejectsRecordedSource tests that a batch holding the same
// signature twice fails to replay with an error instead of a panic.
func TestReplayRejectsRecordedSource(t *testing.T) {
	store := newStore(t)
	f := newFixture(t)

	j, err := Open[testID](store, testHeader("batch-1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	inst, _ := f.dev1.Instance("m/0")
	sig, _ := f.dev1.Sign(inst.Path, f.tx1[:])

	e := Entry{
		Kind:      types.EntryKindSignature,
		Payload:   f.tx1.Digest(),
		Owned:     factor.OwnedInstance{Owner: "acc1", Instance: inst},
		Signature: sig,
	}
	j.append(e)
	j.append(e)

	fresh := f.petitions(t)

	r, err := Replay(store, "batch-1", fresh)
	if !errors.Is(err, petition.ErrFactorSourceAlreadyUsed) {
		t.Fatalf("got %v, want ErrFactorSourceAlreadyUsed", err)
	}

	if r.Signatures != 1 {
		t.Errorf("expected the first entry applied, got %+v", r)
	}
}

// TestReplayedNeglectInOutcome tests that neglects restored from the journal
// show up in the batch-wide neglect list of the next run.
func TestReplayedNeglectInOutcome(t *testing.T) {
	store := newStore(t)
	f := newFixture(t)

	j, err := Open[testID](store, testHeader("batch-1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	skip := factor.NeglectedFactor{Reason: factor.NeglectUserSkipped, Source: f.dev2.ID()}
	j.OnNeglect(f.tx2, skip)

	fresh := f.petitions(t)

	if _, err := Replay(store, "batch-1", fresh); err != nil {
		t.Fatalf("replay: %v", err)
	}

	out, err := collector.Collect(context.Background(), fresh,
		keyring.Interactors[testID](f.ring, factor.KindDevice),
	)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(out.Successful()) != 1 || len(out.Failed()) != 1 {
		t.Fatalf("unexpected outcome: %+v", out.Signables)
	}

	if len(out.Neglected) != 1 || out.Neglected[0] != skip {
		t.Fatalf("got neglected %v, want [%v]", out.Neglected, skip)
	}
}

// TestOpenReopen tests that reopening a batch appends after its last entry.
func TestOpenReopen(t *testing.T) {
	store := newStore(t)
	f := newFixture(t)
	h := testHeader("batch-1")

	j, err := Open[testID](store, h)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	n := factor.NeglectedFactor{Reason: factor.NeglectFailure, Source: f.dev1.ID()}
	j.OnNeglect(f.tx1, n)
	j.OnNeglect(f.tx2, n)

	j, err = Open[testID](store, h)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if j.Len() != 2 {
		t.Fatalf("expected seq 2 after reopen, got %d", j.Len())
	}

	j.OnNeglect(f.tx1, n)

	entries, err := Entries(store, h.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	other := h
	other.ManifestDigest = [32]byte{9}

	if _, err := Open[testID](store, other); err == nil {
		t.Fatal("reopen with another manifest should fail")
	}
}

// TestOpenRejectsBatchID tests batch id validation.
func TestOpenRejectsBatchID(t *testing.T) {
	store := newStore(t)

	for _, id := range []string{"", "a/b"} {
		if _, err := Open[testID](store, testHeader(id)); err == nil {
			t.Errorf("batch id %q should be rejected", id)
		}
	}
}

// TestExportImport tests moving a batch between stores.
func TestExportImport(t *testing.T) {
	src := newStore(t)
	dst := newStore(t)
	f := newFixture(t)
	h := testHeader("batch-1")

	j, err := Open[testID](src, h)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	inst, _ := f.dev1.Instance("m/0")
	sig, _ := f.dev1.Sign(inst.Path, f.tx1[:])

	j.append(Entry{
		Kind:      types.EntryKindSignature,
		Payload:   f.tx1.Digest(),
		Owned:     factor.OwnedInstance{Owner: "acc1", Instance: inst},
		Signature: sig,
	})
	j.OnNeglect(f.tx2, factor.NeglectedFactor{Reason: factor.NeglectUserSkipped, Source: f.dev2.ID()})

	blob, err := Export(src, h.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	got, err := Import(dst, blob)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if got.ID != h.ID || !got.CreatedAt.Equal(h.CreatedAt) || got.ManifestDigest != h.ManifestDigest || got.Signables != h.Signables {
		t.Fatalf("got header %+v, want %+v", got, h)
	}

	want, _ := Entries(src, h.ID)
	imported, err := Entries(dst, h.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	if len(imported) != len(want) {
		t.Fatalf("got %d entries, want %d", len(imported), len(want))
	}

	for i := range want {
		if imported[i].Kind != want[i].Kind || imported[i].Payload != want[i].Payload {
			t.Errorf("entry %d: got %+v, want %+v", i, imported[i], want[i])
		}
	}

	if _, err := Import(dst, blob); !errors.Is(err, ErrBatchExists) {
		t.Fatalf("second import: got %v, want ErrBatchExists", err)
	}

	if _, err := Import(dst, []byte("not zstd")); err == nil {
		t.Fatal("garbage should not import")
	}
}

// TestBatchesAndDelete tests listing and removing batches.
func TestBatchesAndDelete(t *testing.T) {
	store := newStore(t)
	f := newFixture(t)

	for _, id := range []string{"a", "ab"} {
		j, err := Open[testID](store, testHeader(id))
		if err != nil {
			t.Fatalf("open %s: %v", id, err)
		}

		j.OnNeglect(f.tx1, factor.NeglectedFactor{Reason: factor.NeglectFailure, Source: f.dev1.ID()})
	}

	batches, err := Batches(store)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}

	if err := Delete(store, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := ReadHeader(store, "a"); !errors.Is(err, ErrUnknownBatch) {
		t.Fatalf("got %v, want ErrUnknownBatch", err)
	}

	entries, _ := Entries(store, "ab")
	if len(entries) != 1 {
		t.Fatalf("batch ab should keep its entry, got %d", len(entries))
	}
}
