package journal

import (
	"errors"
	"fmt"

	"FactorSign/internal/storage"
	"FactorSign/internal/types"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// ErrBatchExists is returned when importing a batch that is already journaled.
var ErrBatchExists = errors.New("batch already exists")

// Export serializes the header and entries of batch and compresses them with zstd.
func Export(store *storage.Store, batch string) ([]byte, error) {
	h, err := ReadHeader(store, batch)
	if err != nil {
		return nil, err
	}

	entries, err := Entries(store, batch)
	if err != nil {
		return nil, err
	}

	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		offsets[i] = e.build(builder)
	}

	types.JournalExportStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesVec := builder.EndVector(len(offsets))

	headerOff := buildHeader(builder, h)

	types.JournalExportStart(builder)
	types.JournalExportAddHeader(builder, headerOff)
	types.JournalExportAddEntries(builder, entriesVec)
	builder.Finish(types.JournalExportEnd(builder))

	return compress(builder.FinishedBytes())
}

// Import decompresses an exported blob and journals it under its batch id.
// Returns the imported header.
func Import(store *storage.Store, blob []byte) (Header, error) {
	data, err := decompress(blob)
	if err != nil {
		return Header{}, err
	}

	if len(data) < 8 {
		return Header{}, fmt.Errorf("export too short: %d bytes", len(data))
	}

	exp := types.GetRootAsJournalExport(data, 0)

	fbHeader := exp.Header(nil)
	if fbHeader == nil {
		return Header{}, fmt.Errorf("export has no header")
	}

	h, err := headerFromTable(fbHeader)
	if err != nil {
		return Header{}, err
	}

	exists, err := store.Has(headerKey(h.ID))
	if err != nil {
		return Header{}, fmt.Errorf("check batch %s:\n%w", h.ID, err)
	}

	if exists {
		return Header{}, fmt.Errorf("%w: %s", ErrBatchExists, h.ID)
	}

	pairs := make([]storage.KeyValue, 0, exp.EntriesLength()+1)
	pairs = append(pairs, storage.KeyValue{Key: headerKey(h.ID), Value: encodeHeader(h)})

	var fb types.JournalEntry

	for i := 0; i < exp.EntriesLength(); i++ {
		exp.Entries(&fb, i)

		e, err := fromTable(&fb)
		if err != nil {
			return Header{}, fmt.Errorf("entry %d:\n%w", i, err)
		}

		pairs = append(pairs, storage.KeyValue{Key: entryKey(h.ID, uint64(i)), Value: e.encode()})
	}

	if err := store.SetBatch(pairs); err != nil {
		return Header{}, fmt.Errorf("write batch %s:\n%w", h.ID, err)
	}

	return h, nil
}

// compress compresses data using zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress decompresses zstd data.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress:\n%w", err)
	}

	return out, nil
}
