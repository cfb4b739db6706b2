// Package search answers queries by running keyword and semantic retrieval
// concurrently and fusing the two rankings into one list of documents.
package search

import (
	"context"
	"time"

	"github.com/dillonfkhanna/multi-search/internal/config"
	"github.com/dillonfkhanna/multi-search/internal/content"
	"github.com/dillonfkhanna/multi-search/internal/store"
)

// KeywordSearcher is the keyword half of a query. store.KeywordIndex satisfies it.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*store.KeywordResult, error)
}

// VectorSearcher is the semantic half of a query. store.VectorIndex satisfies it.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
}

// QueryEmbedder embeds query text. *embed.Generator satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkResolver maps chunk ids back to their text and owning document.
// *content.Manifest satisfies it.
type ChunkResolver interface {
	Chunks(ctx context.Context, ids []string) (map[string]*content.StoredChunk, error)
}

// Mode names a retrieval mode.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
)

// FusionMethod selects how the two rankings are combined.
type FusionMethod string

const (
	// FusionMinMax normalizes each list to [0,1] and takes the weighted sum.
	FusionMinMax FusionMethod = "minmax"
	// FusionRRF sums weighted reciprocal ranks.
	FusionRRF FusionMethod = "rrf"
)

// Weights configures the relative importance of keyword vs semantic search.
type Weights struct {
	Keyword  float64
	Semantic float64
}

// DefaultWeights weighs both modes equally.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Semantic: 0.5}
}

// Config holds orchestrator defaults.
type Config struct {
	Method      FusionMethod
	Weights     Weights
	RRFConstant int

	// RecencyWeight blends document age into the fused score; 0 disables it.
	RecencyWeight float64

	DefaultLimit int
	MaxLimit     int
	Timeout      time.Duration
	SnippetChars int

	// CollapseDocuments keeps only the best chunk of each document.
	CollapseDocuments bool
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Method:            FusionMinMax,
		Weights:           DefaultWeights(),
		RRFConstant:       DefaultRRFConstant,
		DefaultLimit:      20,
		MaxLimit:          100,
		Timeout:           2 * time.Second,
		SnippetChars:      DefaultSnippetChars,
		CollapseDocuments: true,
	}
}

// ConfigFrom maps the search section of the user configuration.
func ConfigFrom(c config.SearchConfig) Config {
	cfg := DefaultConfig()
	if c.FusionMethod != "" {
		cfg.Method = FusionMethod(c.FusionMethod)
	}
	cfg.Weights = Weights{Keyword: c.KeywordWeight, Semantic: c.SemanticWeight}
	if c.RRFConstant > 0 {
		cfg.RRFConstant = c.RRFConstant
	}
	cfg.RecencyWeight = c.RecencyWeight
	if c.ResultLimitDefault > 0 {
		cfg.DefaultLimit = c.ResultLimitDefault
	}
	if c.MaxResultLimit > 0 {
		cfg.MaxLimit = c.MaxResultLimit
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.SnippetChars > 0 {
		cfg.SnippetChars = c.SnippetChars
	}
	cfg.CollapseDocuments = c.CollapseDocuments
	return cfg
}

// Options configures a single query. Zero values take the Config defaults.
type Options struct {
	Limit   int
	Weights *Weights
	Method  FusionMethod

	// KeywordOnly skips embedding the query.
	KeywordOnly bool
}

// DocumentRef identifies the document a result belongs to.
type DocumentRef struct {
	ID            string
	Path          string
	Title         string
	ModifiedAt    time.Time
	LastIndexedAt time.Time
}

// Result is one ranked hit.
type Result struct {
	Document DocumentRef
	ChunkID  string
	Snippet  string

	// Score is the fused score in [0,1].
	Score float64

	// KeywordScore is the raw BM25 score, SemanticScore the cosine similarity.
	KeywordScore  float64
	SemanticScore float64
	InBoth        bool
	MatchedTerms  []string
}

// Response is the outcome of a query.
type Response struct {
	Results []*Result

	// Degraded lists the retrieval modes that did not contribute.
	Degraded []Mode

	KeywordHits  int
	SemanticHits int
	Took         time.Duration
}

// IsDegraded reports whether only one retrieval mode contributed.
func (r *Response) IsDegraded() bool {
	return len(r.Degraded) > 0
}
