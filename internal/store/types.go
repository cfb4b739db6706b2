// Package store provides the persistent indexes behind search: the keyword
// index (bleve BM25 or SQLite FTS5), the vector index (HNSW) and the
// embedding cache (badger).
package store

import (
	"context"
	"fmt"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
)

// Span is a byte range inside a chunk's text.
type Span struct {
	Start int
	End   int
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
	// Locations are the matched spans in chunk text, ordered by Start.
	Locations []Span
}

// KeywordStats provides statistics about the keyword index.
type KeywordStats struct {
	Backend    string
	ChunkCount int
}

// KeywordIndex is an inverted index over chunk text with BM25 scoring.
// AddOrReplace and Remove are atomic per document: a concurrent Search sees
// all of a document's old postings or all of its new ones.
type KeywordIndex interface {
	// AddOrReplace removes every posting of documentID, then indexes chunks.
	AddOrReplace(ctx context.Context, documentID string, chunks []chunk.Chunk) error

	// Remove drops every posting of documentID.
	Remove(ctx context.Context, documentID string) error

	// Search returns chunks matching query, best first. Equal scores are
	// ordered by chunk id so repeated queries are deterministic.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// AllChunkIDs returns every indexed chunk id (for consistency checks).
	AllChunkIDs(ctx context.Context) ([]string, error)

	Stats() KeywordStats
	Close() error
}

// BM25Config holds the stated scoring constants. Both backends use the
// standard values; they are recorded here so status output can report them.
type BM25Config struct {
	K1 float64
	B  float64
}

// DefaultBM25Config returns k1=1.2, b=0.75.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ChunkID    string
	Similarity float32 // cosine similarity in [-1, 1]
}

// VectorIndex stores chunk vectors grouped by document.
type VectorIndex interface {
	// Upsert replaces all vectors of documentID with the given ones.
	Upsert(ctx context.Context, documentID string, chunkIDs []string, vectors [][]float32) error

	// Remove drops every vector of documentID.
	Remove(ctx context.Context, documentID string) error

	// Search returns the top k chunks by cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	AllChunkIDs() []string
	Contains(chunkID string) bool
	Count() int
	Dimensions() int

	// Save persists the index. It is a no-op for in-memory indexes.
	Save() error
	Close() error
}

// VectorIndexConfig configures the HNSW vector index.
type VectorIndexConfig struct {
	// Dimensions is the vector length. Zero adopts the first inserted vector's length.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 64).
	EfSearch int

	// ExactScanThreshold is the live vector count at or below which Search
	// scans every vector instead of walking the graph (default: 1000000).
	// Exact scans return the true top k; graph walks are approximate.
	ExactScanThreshold int
}

// DefaultVectorIndexConfig returns defaults for dims-dimensional vectors.
func DefaultVectorIndexConfig(dims int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions:         dims,
		M:                  16,
		EfSearch:           64,
		ExactScanThreshold: 1_000_000,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'multisearch rebuild')", e.Expected, e.Got)
}
