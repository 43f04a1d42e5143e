// Package badgerstore implements the default durable cache tier on an
// embedded badger database.
//
// Values above a small threshold are zstd-compressed when that saves space.
// Every stored value carries a one-byte header naming its encoding, so raw
// and compressed values can be mixed freely. Expiry uses badger's native
// entry TTL.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/quiver/pkg/cache"
)

const (
	encRaw  byte = 0
	encZstd byte = 1

	// compressThreshold is the smallest payload worth compressing.
	compressThreshold = 512
)

// Config configures a Store.
type Config struct {
	Path       string // Database directory; ignored when InMemory is set
	InMemory   bool   // Keep everything in memory (tests)
	NoCompress bool   // Store values uncompressed
}

// Store is a [cache.Backend] backed by badger.
type Store struct {
	db       *badger.DB
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	compress bool
}

// Open opens or creates a badger database.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badgerstore: path is required")
	}
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec, compress: !cfg.NoCompress}, nil
}

// Get retrieves a value. Expired entries are misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var stored []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, err := s.decode(stored)
	if err != nil {
		// Undecodable value - treat as miss and drop it.
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores a value in a single transaction.
func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := badger.NewEntry([]byte(key), s.encode(data))
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %s", cache.ErrTooLarge, key)
	}
	return err
}

// Delete removes a value.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear drops every key.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.DropAll()
}

// GC runs one round of value log garbage collection. It returns nil when
// nothing was rewritten.
func (s *Store) GC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func (s *Store) encode(data []byte) []byte {
	if s.compress && len(data) >= compressThreshold {
		out := s.enc.EncodeAll(data, []byte{encZstd})
		if len(out) < len(data)+1 {
			return out
		}
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, encRaw)
	return append(out, data...)
}

func (s *Store) decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("empty value")
	}
	switch stored[0] {
	case encRaw:
		return stored[1:], nil
	case encZstd:
		return s.dec.DecodeAll(stored[1:], nil)
	default:
		return nil, fmt.Errorf("unknown value encoding %d", stored[0])
	}
}

var (
	_ cache.Backend = (*Store)(nil)
	_ cache.Clearer = (*Store)(nil)
)
