// Package journal persists the signatures and neglects of a signing batch
// so an interrupted batch can be resumed. A Journal is a collector observer;
// Replay feeds recorded entries back into fresh petitions before collecting
// again.
//
// Layout in the store:
//
//	h/<batch>          batch header
//	e/<batch>/<seq>    entries, seq is a big-endian uint64
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"FactorSign/internal/collector"
	"FactorSign/internal/factor"
	"FactorSign/internal/logger"
	"FactorSign/internal/petition"
	"FactorSign/internal/signable"
	"FactorSign/internal/signature"
	"FactorSign/internal/storage"
	"FactorSign/internal/types"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ErrUnknownBatch is returned for batches without a header.
var ErrUnknownBatch = errors.New("unknown batch")

// Header describes a journaled batch.
type Header struct {
	ID             string    // ID is the batch id
	CreatedAt      time.Time // CreatedAt is when the batch was first journaled
	ManifestDigest [32]byte  // ManifestDigest identifies the manifest the batch was built from
	Signables      int       // Signables is the batch size
}

func headerKey(batch string) []byte {
	return []byte("h/" + batch)
}

func entryPrefix(batch string) []byte {
	return []byte("e/" + batch + "/")
}

func entryKey(batch string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(entryPrefix(batch), seq)
}

// Journal records the entries of one batch. It implements collector.Observer;
// write errors are logged and the first one is kept for Err.
type Journal[ID signable.ID] struct {
	store *storage.Store
	batch string

	mu  sync.Mutex
	seq uint64 // seq is the next entry sequence number
	err error  // err is the first write error
}

// Open opens the journal of batch, writing header if the batch is new.
// Reopening an existing batch keeps its header and appends after its last entry.
func Open[ID signable.ID](store *storage.Store, h Header) (*Journal[ID], error) {
	if h.ID == "" || strings.ContainsRune(h.ID, '/') {
		return nil, fmt.Errorf("invalid batch id %q", h.ID)
	}

	j := &Journal[ID]{store: store, batch: h.ID}

	existing, err := ReadHeader(store, h.ID)
	switch {
	case errors.Is(err, ErrUnknownBatch):
		if err := store.Set(headerKey(h.ID), encodeHeader(h)); err != nil {
			return nil, fmt.Errorf("write header of %s:\n%w", h.ID, err)
		}
	case err != nil:
		return nil, err
	default:
		if existing.ManifestDigest != h.ManifestDigest {
			return nil, fmt.Errorf("batch %s was built from another manifest", h.ID)
		}
	}

	err = store.IteratePrefix(entryPrefix(h.ID), func(key, _ []byte) error {
		j.seq = binary.BigEndian.Uint64(key[len(key)-8:]) + 1
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan entries of %s:\n%w", h.ID, err)
	}

	return j, nil
}

// Batch returns the batch id.
func (j *Journal[ID]) Batch() string {
	return j.batch
}

// Len returns the number of entries written so far.
func (j *Journal[ID]) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.seq
}

// Err returns the first write error, if any.
func (j *Journal[ID]) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.err
}

func (j *Journal[ID]) append(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.store.Set(entryKey(j.batch, j.seq), e.encode()); err != nil {
		logger.Error("journal write failed",
			"batch", j.batch,
			"seq", j.seq,
			"error", err,
		)

		if j.err == nil {
			j.err = err
		}

		return
	}

	j.seq++
}

// OnSignature records sig.
func (j *Journal[ID]) OnSignature(sig signature.HDSignature[ID]) {
	j.append(signatureEntry(sig))
}

// OnNeglect records n against payload.
func (j *Journal[ID]) OnNeglect(payload ID, n factor.NeglectedFactor) {
	j.append(neglectEntry(payload, n))
}

// OnRound syncs the store so a round survives a crash.
func (j *Journal[ID]) OnRound(p collector.Progress) {
	if err := j.store.Sync(); err != nil {
		logger.Warn("journal sync failed", "batch", j.batch, "error", err)
	}

	logger.Debug("journal round",
		"batch", j.batch,
		"round", p.Round,
		"entries", j.Len(),
	)
}

// Entries returns the recorded entries in write order.
func Entries(store *storage.Store, batch string) ([]Entry, error) {
	var out []Entry

	err := store.IteratePrefix(entryPrefix(batch), func(key, value []byte) error {
		e, err := decodeEntry(value)
		if err != nil {
			return fmt.Errorf("entry %x:\n%w", key, err)
		}

		out = append(out, e)

		return nil
	})

	return out, err
}

// Replayed counts what Replay applied.
type Replayed struct {
	Signatures int // Signatures applied
	Neglects   int // Neglects applied
	Skipped    int // Skipped entries for unknown signables
}

// Replay applies the recorded entries of batch to petitions, which must not
// have collected anything yet. Entries for signables not in petitions are skipped.
// A source recorded twice for one petition fails with
// petition.ErrFactorSourceAlreadyUsed.
func Replay[ID signable.ID](store *storage.Store, batch string, petitions []*petition.ForTransaction[ID]) (Replayed, error) {
	var r Replayed

	if _, err := ReadHeader(store, batch); err != nil {
		return r, err
	}

	entries, err := Entries(store, batch)
	if err != nil {
		return r, err
	}

	byDigest := make(map[[32]byte]*petition.ForTransaction[ID], len(petitions))
	for _, p := range petitions {
		byDigest[p.Payload().Digest()] = p
	}

	for i, e := range entries {
		p, ok := byDigest[e.Payload]
		if !ok {
			r.Skipped++
			continue
		}

		switch e.Kind {
		case types.EntryKindSignature:
			sig := signature.HDSignature[ID]{
				Input:     signature.HDInput[ID]{PayloadID: p.Payload(), Owned: e.Owned},
				Signature: e.Signature,
			}

			added, err := p.TryAddSignatureIfRelevant(sig)
			if err != nil {
				return r, fmt.Errorf("replay entry %d of %s:\n%w", i, batch, err)
			}

			if added {
				r.Signatures++
			}
		case types.EntryKindNeglect:
			neglected, err := p.TryNeglectIfReferenced(e.Neglect)
			if err != nil {
				return r, fmt.Errorf("replay entry %d of %s:\n%w", i, batch, err)
			}

			if neglected {
				r.Neglects++
			}
		}
	}

	logger.Info("journal replayed",
		"batch", batch,
		"signatures", r.Signatures,
		"neglects", r.Neglects,
		"skipped", r.Skipped,
	)

	return r, nil
}

// ReadHeader returns the header of batch or ErrUnknownBatch.
func ReadHeader(store *storage.Store, batch string) (Header, error) {
	data, err := store.Get(headerKey(batch))
	if err != nil {
		return Header{}, fmt.Errorf("read header of %s:\n%w", batch, err)
	}

	if data == nil {
		return Header{}, fmt.Errorf("%w: %s", ErrUnknownBatch, batch)
	}

	return decodeHeader(data)
}

// Batches lists the headers of every journaled batch.
func Batches(store *storage.Store) ([]Header, error) {
	var out []Header

	err := store.IteratePrefix([]byte("h/"), func(_, value []byte) error {
		h, err := decodeHeader(value)
		if err != nil {
			return err
		}

		out = append(out, h)

		return nil
	})

	return out, err
}

// Delete removes batch and its entries.
func Delete(store *storage.Store, batch string) error {
	if err := store.DeletePrefix(entryPrefix(batch)); err != nil {
		return fmt.Errorf("delete entries of %s:\n%w", batch, err)
	}

	return store.Delete(headerKey(batch))
}

func buildHeader(builder *flatbuffers.Builder, h Header) flatbuffers.UOffsetT {
	idOff := builder.CreateString(h.ID)
	digestVec := builder.CreateByteVector(h.ManifestDigest[:])

	types.BatchHeaderStart(builder)
	types.BatchHeaderAddId(builder, idOff)
	types.BatchHeaderAddCreatedAt(builder, h.CreatedAt.UnixNano())
	types.BatchHeaderAddManifestDigest(builder, digestVec)
	types.BatchHeaderAddSignables(builder, uint32(h.Signables))

	return types.BatchHeaderEnd(builder)
}

func encodeHeader(h Header) []byte {
	builder := flatbuffers.NewBuilder(128)
	builder.Finish(buildHeader(builder, h))

	return builder.FinishedBytes()
}

func decodeHeader(data []byte) (Header, error) {
	if len(data) < 8 {
		return Header{}, fmt.Errorf("header too short: %d bytes", len(data))
	}

	return headerFromTable(types.GetRootAsBatchHeader(data, 0))
}

func headerFromTable(fb *types.BatchHeader) (Header, error) {
	h := Header{
		ID:        string(fb.Id()),
		CreatedAt: time.Unix(0, fb.CreatedAt()).UTC(),
		Signables: int(fb.Signables()),
	}

	if n := copy(h.ManifestDigest[:], fb.ManifestDigestBytes()); n != len(h.ManifestDigest) {
		return Header{}, fmt.Errorf("manifest digest has %d bytes", n)
	}

	return h, nil
}
