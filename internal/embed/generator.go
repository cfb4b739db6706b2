package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// DefaultLRUSize is the number of vectors kept in memory in front of the
// persistent cache. At 768 dimensions that is about 12MB.
const DefaultLRUSize = 4096

// Cache persists vectors keyed by model version and chunk content hash.
// *store.EmbeddingCache satisfies it.
type Cache interface {
	Get(model, hash string) ([]float32, bool, error)
	Put(model string, hashes []string, vectors [][]float32) error
}

// GenerateStats describes where the vectors of one Embed call came from.
type GenerateStats struct {
	Chunks     int // chunks requested
	Unique     int // distinct content hashes among them
	MemoryHits int
	CacheHits  int
	Computed   int
	Batches    int
}

// Generator turns chunks into embeddings for one model version. Vectors
// already known for a content hash are reused; the rest are computed in
// batches behind a circuit breaker so a dead backend fails fast.
type Generator struct {
	embedder     Embedder
	provider     ProviderType
	modelVersion string
	batchSize    int

	cache   Cache
	memory  *lru.Cache[string, []float32]
	breaker *mserrors.CircuitBreaker
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithCache sets the persistent cache layer.
func WithCache(c Cache) GeneratorOption {
	return func(g *Generator) {
		g.cache = c
	}
}

// WithBatchSize sets the number of texts per backend request.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n >= MinBatchSize {
			g.batchSize = min(n, MaxBatchSize)
		}
	}
}

// WithLRUSize sets the in-memory cache capacity.
func WithLRUSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.memory, _ = lru.New[string, []float32](n)
		}
	}
}

// WithModelVersion pins the model version instead of deriving it.
func WithModelVersion(v string) GeneratorOption {
	return func(g *Generator) {
		if v != "" {
			g.modelVersion = v
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *mserrors.CircuitBreaker) GeneratorOption {
	return func(g *Generator) {
		g.breaker = cb
	}
}

// NewGenerator wraps embedder. The model version defaults to
// "<provider>:<model>:<dimensions>".
func NewGenerator(embedder Embedder, opts ...GeneratorOption) *Generator {
	g := &Generator{
		embedder:  embedder,
		provider:  providerOf(embedder),
		batchSize: DefaultBatchSize,
		breaker: mserrors.NewCircuitBreaker("embeddings",
			mserrors.WithMaxFailures(3),
			mserrors.WithResetTimeout(30*time.Second)),
	}
	g.memory, _ = lru.New[string, []float32](DefaultLRUSize)
	for _, opt := range opts {
		opt(g)
	}
	if g.modelVersion == "" {
		g.modelVersion = ModelVersion(g.provider, embedder.ModelName(), embedder.Dimensions())
	}
	return g
}

func providerOf(e Embedder) ProviderType {
	switch e.(type) {
	case *OllamaEmbedder:
		return ProviderOllama
	case *StaticEmbedder:
		return ProviderStatic
	default:
		return ProviderCustom
	}
}

// ModelVersion returns the identity recorded with every vector this
// generator produces.
func (g *Generator) ModelVersion() string {
	return g.modelVersion
}

// Dimensions returns the vector size.
func (g *Generator) Dimensions() int {
	return g.embedder.Dimensions()
}

// ModelName returns the backend model name.
func (g *Generator) ModelName() string {
	return g.embedder.ModelName()
}

// Available reports whether the backend answers and the breaker is not open.
func (g *Generator) Available(ctx context.Context) bool {
	return g.breaker.State() != mserrors.StateOpen && g.embedder.Available(ctx)
}

// Embed returns one embedding per chunk, in order. A backend failure is
// reported as ModelUnavailable; cancellation is returned as the context error.
func (g *Generator) Embed(ctx context.Context, chunks []chunk.Chunk) ([]Embedding, GenerateStats, error) {
	stats := GenerateStats{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return []Embedding{}, stats, nil
	}

	vectors := make(map[string][]float32, len(chunks))
	var missing []string
	texts := make(map[string]string)
	for _, c := range chunks {
		if _, seen := vectors[c.ContentHash]; seen {
			continue
		}
		if _, queued := texts[c.ContentHash]; queued {
			continue
		}
		stats.Unique++

		if vec, ok := g.lookup(c.ContentHash, &stats); ok {
			vectors[c.ContentHash] = vec
			continue
		}
		texts[c.ContentHash] = c.Text
		missing = append(missing, c.ContentHash)
	}

	for start := 0; start < len(missing); start += g.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		hashes := missing[start:min(start+g.batchSize, len(missing))]
		batch := make([]string, len(hashes))
		for i, h := range hashes {
			batch[i] = texts[h]
		}

		computed, err := g.embedBatch(ctx, batch)
		if err != nil {
			return nil, stats, err
		}
		stats.Batches++
		stats.Computed += len(computed)

		for i, h := range hashes {
			vectors[h] = computed[i]
			g.memory.Add(g.key(h), computed[i])
		}
		if g.cache != nil {
			if err := g.cache.Put(g.modelVersion, hashes, computed); err != nil {
				slog.Warn("embedding_cache_write_failed",
					slog.String("model_version", g.modelVersion),
					slog.String("error", err.Error()))
			}
		}
	}

	out := make([]Embedding, len(chunks))
	for i, c := range chunks {
		out[i] = Embedding{
			ChunkID:      c.ID,
			ContentHash:  c.ContentHash,
			Vector:       vectors[c.ContentHash],
			ModelVersion: g.modelVersion,
		}
	}
	return out, stats, nil
}

// EmbedQuery embeds a query string. Queries skip the persistent cache.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Generator) key(hash string) string {
	return g.modelVersion + "\x00" + hash
}

// lookup checks memory, then the persistent cache. Cache read errors are
// treated as misses.
func (g *Generator) lookup(hash string, stats *GenerateStats) ([]float32, bool) {
	if vec, ok := g.memory.Get(g.key(hash)); ok {
		stats.MemoryHits++
		return vec, true
	}
	if g.cache == nil {
		return nil, false
	}

	vec, ok, err := g.cache.Get(g.modelVersion, hash)
	if err != nil {
		slog.Warn("embedding_cache_read_failed",
			slog.String("hash", hash),
			slog.String("error", err.Error()))
		return nil, false
	}
	if !ok || len(vec) != g.Dimensions() {
		return nil, false
	}
	stats.CacheHits++
	g.memory.Add(g.key(hash), vec)
	return vec, true
}

func (g *Generator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	var callErr error
	err := g.breaker.Execute(func() error {
		vectors, callErr = g.embedder.EmbedBatch(ctx, texts)
		if callErr == nil && len(vectors) != len(texts) {
			callErr = fmt.Errorf("backend returned %d vectors for %d texts", len(vectors), len(texts))
		}
		if callErr != nil && ctx.Err() != nil {
			// Cancellation does not count against the backend.
			return nil
		}
		return callErr
	})
	switch {
	case errors.Is(err, mserrors.ErrCircuitOpen):
		return nil, mserrors.ModelUnavailable(g.embedder.ModelName(), err)
	case callErr != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case callErr != nil:
		return nil, mserrors.ModelUnavailable(g.embedder.ModelName(), callErr)
	}
	return vectors, nil
}

// Close closes the backend embedder. The persistent cache is owned by the caller.
func (g *Generator) Close() error {
	return g.embedder.Close()
}
