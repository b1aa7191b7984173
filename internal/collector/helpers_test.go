package collector

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"FactorSign/internal/factor"
	"FactorSign/internal/petition"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"

	"github.com/zeebo/blake3"
	"go.uber.org/goleak"
)

type testID = signable.IntentHash

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// call records one interactor invocation.
type call struct {
	kind    factor.Kind
	sources []factor.SourceID
	reqs    []SourceRequest[testID]
}

// fakeSigner is a poly and mono interactor signing with in-memory ed25519 keys.
type fakeSigner struct {
	mu    sync.Mutex
	keys  map[factor.SourceID]ed25519.PrivateKey
	calls []call

	skip    map[factor.SourceID]bool // skip reports these sources as skipped
	omit    map[testID]bool          // omit leaves these payloads unsigned
	err     error                    // err is returned by every call
	garbage bool                     // garbage returns signatures that do not verify
	extra   []signature.HDSignature[testID]
	onCall  func()
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{
		keys: make(map[factor.SourceID]ed25519.PrivateKey),
		skip: make(map[factor.SourceID]bool),
		omit: make(map[testID]bool),
	}
}

// instance creates a factor source of kind named name and returns its key.
func (f *fakeSigner) instance(kind factor.Kind, name string) factor.HDInstance {
	seed := blake3.Sum256([]byte(name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)

	id := factor.NewSourceID(kind, pub)
	f.keys[id] = priv

	return factor.HDInstance{
		Source:    id,
		PublicKey: factor.PublicKey{Curve: factor.CurveEd25519, Bytes: pub},
		Path:      "m/44H/1022H/1H/525H/1460H/0H",
	}
}

func (f *fakeSigner) sign(req SourceRequest[testID]) []signature.HDSignature[testID] {
	var out []signature.HDSignature[testID]

	for _, in := range req.Inputs {
		if f.omit[in.Payload] {
			continue
		}

		digest := in.Payload.Digest()

		for _, owned := range in.Owned {
			sig := ed25519.Sign(f.keys[req.Source], digest[:])
			if f.garbage {
				sig = make([]byte, ed25519.SignatureSize)
			}

			out = append(out, signature.HDSignature[testID]{
				Input:     signature.HDInput[testID]{PayloadID: in.Payload, Owned: owned},
				Signature: signature.Signature{Curve: factor.CurveEd25519, Bytes: sig},
			})
		}
	}

	return out
}

func (f *fakeSigner) record(kind factor.Kind, reqs []SourceRequest[testID]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := call{kind: kind, reqs: reqs}
	for _, r := range reqs {
		c.sources = append(c.sources, r.Source)
	}

	f.calls = append(f.calls, c)
}

func (f *fakeSigner) SignPoly(ctx context.Context, req PolyRequest[testID]) (PolyResponse[testID], error) {
	f.record(req.Kind, req.Sources)

	if f.onCall != nil {
		f.onCall()
	}

	if f.err != nil {
		return PolyResponse[testID]{}, f.err
	}

	if err := ctx.Err(); err != nil {
		return PolyResponse[testID]{}, err
	}

	var resp PolyResponse[testID]

	for _, r := range req.Sources {
		if f.skip[r.Source] {
			resp.Skipped = append(resp.Skipped, r.Source)
			continue
		}

		resp.Signatures = append(resp.Signatures, f.sign(r)...)
	}

	resp.Signatures = append(resp.Signatures, f.extra...)

	return resp, nil
}

func (f *fakeSigner) SignMono(ctx context.Context, req MonoRequest[testID]) (MonoResponse[testID], error) {
	f.record(req.Kind, []SourceRequest[testID]{req.Source})

	if f.onCall != nil {
		f.onCall()
	}

	if f.err != nil {
		return MonoResponse[testID]{}, f.err
	}

	if err := ctx.Err(); err != nil {
		return MonoResponse[testID]{}, err
	}

	if f.skip[req.Source.Source] {
		return MonoResponse[testID]{Skipped: true}, nil
	}

	sigs := append(f.sign(req.Source), f.extra...)

	return MonoResponse[testID]{Signatures: sigs}, nil
}

// kinds returns the kinds of the recorded calls in order.
func (f *fakeSigner) kinds() []factor.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]factor.Kind, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.kind
	}

	return out
}

// interactors registers f as poly for device and mono for every other kind.
func (f *fakeSigner) interactors() *Interactors[testID] {
	in := NewInteractors[testID]()

	for _, k := range factor.AllKinds {
		if k == factor.KindDevice {
			in.Poly(k, f)
		} else {
			in.Mono(k, f)
		}
	}

	return in
}

func testTx(name string) testID {
	return signable.NewIntentHash([]byte(name))
}

// unsecurified builds the petition of tx signed by one unsecurified entity per instance.
func unsecurified(t *testing.T, tx testID, owners map[factor.Address]factor.HDInstance) *petition.ForTransaction[testID] {
	t.Helper()

	var entities []*petition.ForEntity[testID]
	for addr, inst := range owners {
		entities = append(entities, petition.NewUnsecurifiedEntity(tx, addr, inst))
	}

	p, err := petition.NewForTransaction(tx, entities...)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}

	return p
}

// mustCollect runs a collector and fails the test on construction errors.
func mustCollect(t *testing.T, ctx context.Context, petitions []*petition.ForTransaction[testID], in *Interactors[testID], opts ...Option[testID]) *Outcome[testID] {
	t.Helper()

	out, err := Collect(ctx, petitions, in, opts...)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	return out
}

// verdict returns the verdict of tx in out.
func verdict(t *testing.T, out *Outcome[testID], tx testID) Verdict {
	t.Helper()

	s, ok := out.Signable(tx)
	if !ok {
		t.Fatalf("signable %s missing from outcome", tx)
	}

	return s.Verdict
}

// recorder is an Observer counting notifications.
type recorder struct {
	signatures int
	neglects   int
	rounds     []Progress
}

func (r *recorder) OnSignature(signature.HDSignature[testID]) { r.signatures++ }

func (r *recorder) OnNeglect(testID, factor.NeglectedFactor) { r.neglects++ }

func (r *recorder) OnRound(p Progress) { r.rounds = append(r.rounds, p) }

// ed25519Sign signs msg with the key of source.
func ed25519Sign(f *fakeSigner, source factor.SourceID, msg []byte) []byte {
	return ed25519.Sign(f.keys[source], msg)
}
