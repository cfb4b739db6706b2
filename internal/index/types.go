// Package index owns the on-disk search index: it opens the manifest, the
// keyword and vector indexes and the embedding cache under one storage root,
// runs ingestion passes against them and answers queries.
package index

import (
	"time"

	"github.com/dillonfkhanna/multi-search/internal/config"
	"github.com/dillonfkhanna/multi-search/internal/content"
	"github.com/dillonfkhanna/multi-search/internal/embed"
)

// Source is one document handed to an ingestion pass.
type Source = content.Source

// File names under the storage root.
const (
	ManifestFile  = "manifest.db"
	VectorFile    = "vectors.hnsw"
	EmbeddingsDir = "embeddings"
	LockFile      = ".lock"
)

// DocState is how far a document got through an ingestion pass.
type DocState int

const (
	StatePending DocState = iota
	StateHashed
	StateSkipped
	StateChunked
	StateEmbeddingCommitted
	StateKeywordCommitted
	StateVectorCommitted
	StateManifestUpdated
	StateDeleted
	StateRolledBack
	StateFailed
)

func (s DocState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateHashed:
		return "hashed"
	case StateSkipped:
		return "skipped"
	case StateChunked:
		return "chunked"
	case StateEmbeddingCommitted:
		return "embedding_committed"
	case StateKeywordCommitted:
		return "keyword_committed"
	case StateVectorCommitted:
		return "vector_committed"
	case StateManifestUpdated:
		return "manifest_updated"
	case StateDeleted:
		return "deleted"
	case StateRolledBack:
		return "rolled_back"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DocumentOutcome is the per-document result of a pass.
type DocumentOutcome struct {
	DocumentID string
	Path       string
	Status     content.Status
	Decision   content.Decision
	State      DocState
	Chunks     int

	// KeywordOnly is set when the document was committed without vectors.
	KeywordOnly bool
	Err         error
}

// Failure records a document the pass could not index.
type Failure struct {
	Path string
	Err  error
}

// IngestResult summarises an ingestion pass.
type IngestResult struct {
	// PassID identifies the pass in logs.
	PassID string

	Indexed     int
	Skipped     int
	Deleted     int
	KeywordOnly int
	Failed      []Failure

	// Degraded is set when the embedding model became unavailable during
	// the pass and the remaining documents were committed keyword-only.
	Degraded bool

	Embeddings embed.GenerateStats
	Outcomes   []DocumentOutcome
	Duration   time.Duration
}

// Options configures a Manager. Zero values take the defaults of
// config.NewConfig.
type Options struct {
	Chunking   config.ChunkingConfig
	Embeddings config.EmbeddingsConfig
	Search     config.SearchConfig

	// KeywordBackend is "bleve" (default) or "sqlite".
	KeywordBackend string

	// Workers bounds concurrent document preparation.
	Workers int
}

// OptionsFrom maps the user configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Chunking:       cfg.Chunking,
		Embeddings:     cfg.Embeddings,
		Search:         cfg.Search,
		KeywordBackend: cfg.Storage.KeywordBackend,
		Workers:        cfg.Ingest.Workers,
	}
}

// Deps are the collaborators a Manager does not construct itself.
type Deps struct {
	// Embedder computes vectors. Nil runs the index keyword-only.
	Embedder embed.Embedder
}

// Status describes an open index.
type Status struct {
	Root           string
	Documents      int
	Chunks         int
	KeywordOnly    int
	KeywordBackend string
	KeywordChunks  int
	Vectors        int
	Dimensions     int
	ModelVersion   string
	LastIndexed    time.Time

	// DiskBytes is the size of everything under Root, 0 in memory.
	DiskBytes int64

	// SemanticEnabled is false when the index runs keyword-only.
	SemanticEnabled bool
	MaxChunkChars   int
	OverlapChars    int
}
