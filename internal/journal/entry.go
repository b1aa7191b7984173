package journal

import (
	"fmt"

	"FactorSign/internal/factor"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
	"FactorSign/internal/types"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Entry is one decoded journal record: a signature or a neglect.
type Entry struct {
	Kind      types.EntryKind      // Kind tells which fields are set
	Payload   [32]byte             // Payload is the digest of the signable
	Owned     factor.OwnedInstance // Owned is set for signatures
	Signature signature.Signature  // Signature is set for signatures
	Neglect   factor.NeglectedFactor
}

// signatureEntry builds the entry of sig.
func signatureEntry[ID signable.ID](sig signature.HDSignature[ID]) Entry {
	return Entry{
		Kind:      types.EntryKindSignature,
		Payload:   sig.PayloadID().Digest(),
		Owned:     sig.Owned(),
		Signature: sig.Signature,
	}
}

// neglectEntry builds the entry of n recorded against payload.
func neglectEntry[ID signable.ID](payload ID, n factor.NeglectedFactor) Entry {
	return Entry{
		Kind:    types.EntryKindNeglect,
		Payload: payload.Digest(),
		Neglect: n,
	}
}

// Source returns the factor source of the entry.
func (e Entry) Source() factor.SourceID {
	if e.Kind == types.EntryKindNeglect {
		return e.Neglect.Source
	}

	return e.Owned.Instance.Source
}

// build writes e into builder and returns its offset.
func (e Entry) build(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	src := e.Source()

	payloadVec := builder.CreateByteVector(e.Payload[:])
	bodyVec := builder.CreateByteVector(src.Body[:])

	var ownerOff, pkVec, pathOff, sigVec flatbuffers.UOffsetT

	if e.Kind == types.EntryKindSignature {
		ownerOff = builder.CreateString(string(e.Owned.Owner))
		pkVec = builder.CreateByteVector(e.Owned.Instance.PublicKey.Bytes)
		pathOff = builder.CreateString(string(e.Owned.Instance.Path))
		sigVec = builder.CreateByteVector(e.Signature.Bytes)
	}

	types.JournalEntryStart(builder)
	types.JournalEntryAddKind(builder, e.Kind)
	types.JournalEntryAddPayload(builder, payloadVec)
	types.JournalEntryAddSourceKind(builder, byte(src.Kind))
	types.JournalEntryAddSourceBody(builder, bodyVec)

	if e.Kind == types.EntryKindSignature {
		types.JournalEntryAddOwner(builder, ownerOff)
		types.JournalEntryAddCurve(builder, byte(e.Owned.Instance.PublicKey.Curve))
		types.JournalEntryAddPublicKey(builder, pkVec)
		types.JournalEntryAddPath(builder, pathOff)
		types.JournalEntryAddSignature(builder, sigVec)
	} else {
		types.JournalEntryAddReason(builder, byte(e.Neglect.Reason))
	}

	return types.JournalEntryEnd(builder)
}

// encode serializes e as a standalone flatbuffer.
func (e Entry) encode() []byte {
	builder := flatbuffers.NewBuilder(256)
	builder.Finish(e.build(builder))

	return builder.FinishedBytes()
}

// decodeEntry parses a standalone entry buffer.
func decodeEntry(data []byte) (Entry, error) {
	if len(data) < 8 {
		return Entry{}, fmt.Errorf("entry too short: %d bytes", len(data))
	}

	return fromTable(types.GetRootAsJournalEntry(data, 0))
}

// fromTable converts a flatbuffers entry, copying every byte slice.
func fromTable(fb *types.JournalEntry) (Entry, error) {
	e := Entry{Kind: fb.Kind()}

	if n := copy(e.Payload[:], fb.PayloadBytes()); n != len(e.Payload) {
		return Entry{}, fmt.Errorf("payload digest has %d bytes", n)
	}

	src := factor.SourceID{Kind: factor.Kind(fb.SourceKind())}
	if n := copy(src.Body[:], fb.SourceBodyBytes()); n != len(src.Body) {
		return Entry{}, fmt.Errorf("factor source body has %d bytes", n)
	}

	if !src.Kind.Valid() {
		return Entry{}, fmt.Errorf("invalid factor source kind %d", src.Kind)
	}

	switch e.Kind {
	case types.EntryKindSignature:
		e.Owned = factor.OwnedInstance{
			Owner: factor.Address(fb.Owner()),
			Instance: factor.HDInstance{
				Source: src,
				PublicKey: factor.PublicKey{
					Curve: factor.Curve(fb.Curve()),
					Bytes: append([]byte(nil), fb.PublicKeyBytes()...),
				},
				Path: factor.DerivationPath(fb.Path()),
			},
		}
		e.Signature = signature.Signature{
			Curve: factor.Curve(fb.Curve()),
			Bytes: append([]byte(nil), fb.SignatureBytes()...),
		}
	case types.EntryKindNeglect:
		e.Neglect = factor.NeglectedFactor{Reason: factor.NeglectReason(fb.Reason()), Source: src}
	default:
		return Entry{}, fmt.Errorf("unknown entry kind %s", e.Kind)
	}

	return e, nil
}
