package petition

import (
	"fmt"
	"testing"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
)

type testID = signable.IntentHash

// testInstance creates an instance of a fresh factor source named name.
func testInstance(kind factor.Kind, name string) factor.HDInstance {
	return factor.HDInstance{
		Source:    factor.NewSourceID(kind, []byte(name)),
		PublicKey: factor.PublicKey{Curve: factor.CurveEd25519, Bytes: []byte(name)},
		Path:      factor.DerivationPath(fmt.Sprintf("m/44H/1022H/%s", name)),
	}
}

// testInstances creates one device instance per name.
func testInstances(names ...string) []factor.HDInstance {
	out := make([]factor.HDInstance, len(names))
	for i, n := range names {
		out[i] = testInstance(factor.KindDevice, n)
	}

	return out
}

// testTx returns a deterministic signable id.
func testTx(name string) testID {
	return signable.NewIntentHash([]byte(name))
}

// testSign builds a signature of inst for owner over payload. The bytes are
// not a real signature; petitions never verify.
func testSign(payload testID, owner factor.Address, inst factor.HDInstance) signature.HDSignature[testID] {
	return signature.HDSignature[testID]{
		Input: signature.HDInput[testID]{
			PayloadID: payload,
			Owned:     factor.OwnedInstance{Owner: owner, Instance: inst},
		},
		Signature: signature.Signature{Curve: inst.PublicKey.Curve, Bytes: []byte("sig")},
	}
}

// failed returns a Failure neglect of inst's source.
func failed(inst factor.HDInstance) factor.NeglectedFactor {
	return factor.NeglectedFactor{Reason: factor.NeglectFailure, Source: inst.Source}
}

// skipped returns a UserSkipped neglect of inst's source.
func skipped(inst factor.HDInstance) factor.NeglectedFactor {
	return factor.NeglectedFactor{Reason: factor.NeglectUserSkipped, Source: inst.Source}
}

// sources builds a set of factor source ids.
func sources(insts ...factor.HDInstance) map[factor.SourceID]struct{} {
	out := make(map[factor.SourceID]struct{}, len(insts))
	for _, i := range insts {
		out[i.Source] = struct{}{}
	}

	return out
}

// expectPanic fails the test if fn does not panic.
func expectPanic(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	fn()
}
