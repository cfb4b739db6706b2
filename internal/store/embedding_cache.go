package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// EmbeddingCache persists vectors keyed by (model version, chunk content
// hash) in badger. It is a cache: losing it costs recomputation only.
type EmbeddingCache struct {
	db *badger.DB
}

// badgerLogger adapts slog to badger's Logger. Badger is chatty at info
// level, so info is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenEmbeddingCache opens the cache directory, or an in-memory cache when
// dir is empty. A directory badger refuses to open is wiped and recreated.
func OpenEmbeddingCache(dir string) (*EmbeddingCache, error) {
	db, err := openBadger(dir)
	if err != nil && dir != "" {
		slog.Warn("embedding_cache_reset",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, fmt.Errorf("embedding cache unusable and cannot remove %s: %w", dir, rmErr)
		}
		db, err = openBadger(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &EmbeddingCache{db: db}, nil
}

func openBadger(dir string) (*badger.DB, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: slog.Default()}
	opts.Compression = options.None
	return badger.Open(opts)
}

func cacheKey(modelVersion, contentHash string) []byte {
	key := make([]byte, 0, len(modelVersion)+1+len(contentHash))
	key = append(key, modelVersion...)
	key = append(key, 0)
	key = append(key, contentHash...)
	return key
}

// Get returns the cached vector, or ok=false on a miss.
func (c *EmbeddingCache) Get(modelVersion, contentHash string) ([]float32, bool, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(modelVersion, contentHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec, err = decodeVector(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Put stores vectors for the given hashes in one transaction. Existing
// entries are overwritten with identical values.
func (c *EmbeddingCache) Put(modelVersion string, hashes []string, vectors [][]float32) error {
	if len(hashes) != len(vectors) {
		return fmt.Errorf("hashes and vectors length mismatch: %d vs %d", len(hashes), len(vectors))
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for i, h := range hashes {
		if err := wb.Set(cacheKey(modelVersion, h), encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("failed to cache embedding: %w", err)
		}
	}
	return wb.Flush()
}

// Count returns the number of cached vectors for modelVersion.
func (c *EmbeddingCache) Count(modelVersion string) (int, error) {
	n := 0
	prefix := append([]byte(modelVersion), 0)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// DropModel removes every entry for modelVersion.
func (c *EmbeddingCache) DropModel(modelVersion string) error {
	return c.db.DropPrefix(append([]byte(modelVersion), 0))
}

// Close closes the database.
func (c *EmbeddingCache) Close() error {
	if c.db.IsClosed() {
		return nil
	}
	return c.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
