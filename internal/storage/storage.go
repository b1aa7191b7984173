// Package storage is the pebble key-value store behind the signing journal.
// Writes skip the WAL fsync and a background goroutine syncs periodically,
// so a crash loses at most one sync interval of journal entries.
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"FactorSign/internal/logger"

	"github.com/cockroachdb/pebble"
)

const (
	// DefaultSyncInterval is the default interval between WAL syncs.
	DefaultSyncInterval = 100 * time.Millisecond

	// defaultCacheSize is the block cache size. Journals are small.
	defaultCacheSize = 8 << 20
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// KeyValue is one entry of a batch write.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Options tunes a Store.
type Options struct {
	SyncInterval time.Duration // SyncInterval between WAL syncs, DefaultSyncInterval if zero
	CacheSize    int64         // CacheSize of the block cache in bytes
}

// Store is a key-value store backed by pebble.
type Store struct {
	db       *pebble.DB    // db is the underlying pebble database
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens or creates a store at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:                       cache,
		MemTableSize:                4 << 20,
		MemTableStopWritesThreshold: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s:\n%w", path, err)
	}

	s := &Store{
		db:       db,
		stopSync: make(chan struct{}),
		closed:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.syncLoop(opts.SyncInterval)

	return s, nil
}

// Get returns the value of key, or nil if the key does not exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get %x:\n%w", key, err)
	}
	defer closer.Close()

	// value is only valid until closer.Close()
	out := make([]byte, len(value))
	copy(out, value)

	return out, nil
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	v, err := s.Get(key)
	return v != nil, err
}

// Set stores value under key.
func (s *Store) Set(key, value []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	return s.db.Set(key, value, pebble.NoSync)
}

// SetBatch stores every pair atomically.
func (s *Store) SetBatch(pairs []KeyValue) error {
	if s.isClosed() {
		return ErrClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return fmt.Errorf("batch set %x:\n%w", kv.Key, err)
		}
	}

	return batch.Commit(pebble.NoSync)
}

// Delete removes key.
func (s *Store) Delete(key []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	return s.db.Delete(key, pebble.NoSync)
}

// DeletePrefix removes every key starting with prefix.
func (s *Store) DeletePrefix(prefix []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	upper := prefixUpperBound(prefix)
	if upper == nil {
		return fmt.Errorf("refusing to delete unbounded prefix %x", prefix)
	}

	return s.db.DeleteRange(prefix, upper, pebble.NoSync)
}

// IteratePrefix calls fn for each entry whose key starts with prefix, in key
// order. Iteration stops at the first error fn returns. Keys and values are
// only valid during the call.
func (s *Store) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	if s.isClosed() {
		return ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("new iterator:\n%w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Sync forces a WAL sync to disk.
func (s *Store) Sync() error {
	if s.isClosed() {
		return ErrClosed
	}

	return s.db.LogData(nil, pebble.Sync)
}

// Close syncs and closes the store. Later calls return nil.
func (s *Store) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.stopSync)
		s.wg.Wait()

		if serr := s.db.LogData(nil, pebble.Sync); serr != nil {
			err = fmt.Errorf("final sync:\n%w", serr)
		}

		close(s.closed)

		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})

	return err
}

func (s *Store) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// syncLoop syncs the WAL every interval until Close.
func (s *Store) syncLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.db.LogData(nil, pebble.Sync); err != nil {
				logger.Warn("journal sync failed", "error", err)
			}
		case <-s.stopSync:
			return
		}
	}
}

// prefixUpperBound returns the exclusive upper bound of a prefix scan, or nil
// when prefix is empty or all 0xff.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}
