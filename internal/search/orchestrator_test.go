package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	"github.com/dillonfkhanna/multi-search/internal/content"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/store"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeKeyword struct {
	results []*store.KeywordResult
	err     error
	block   bool
	limit   atomic.Int64
}

func (f *fakeKeyword) Search(ctx context.Context, _ string, limit int) ([]*store.KeywordResult, error) {
	f.limit.Store(int64(limit))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results, f.err
}

type fakeVector struct {
	results []*store.VectorResult
	err     error
}

func (f *fakeVector) Search(_ context.Context, _ []float32, _ int) ([]*store.VectorResult, error) {
	return f.results, f.err
}

type fakeEmbedder struct {
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type mapResolver map[string]*content.StoredChunk

func (m mapResolver) Chunks(_ context.Context, ids []string) (map[string]*content.StoredChunk, error) {
	out := make(map[string]*content.StoredChunk, len(ids))
	for _, id := range ids {
		if sc, ok := m[id]; ok {
			out[id] = sc
		}
	}
	return out, nil
}

// add registers a chunk of document docID at the given offset.
func (m mapResolver) add(docID string, offset int, text string, indexedAt time.Time) string {
	id := chunk.ID(docID, offset)
	m[id] = &content.StoredChunk{
		Chunk: chunk.Chunk{ID: id, DocumentID: docID, Text: text, StartOffset: offset, EndOffset: offset + len(text)},
		Document: content.Document{
			ID:            docID,
			Path:          "/notes/" + docID + ".md",
			Title:         docID,
			ModifiedAt:    indexedAt,
			LastIndexedAt: indexedAt,
		},
	}
	return id
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 200 * time.Millisecond
	return cfg
}

func resultDocs(resp *Response) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Document.ID
	}
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestOrchestrator_FusesBothModes(t *testing.T) {
	// Given: a keyword hit on fox and a semantic hit on canine
	now := time.Now()
	chunks := mapResolver{}
	fox := chunks.add("doc-a", 0, "The quick brown fox jumps over the lazy dog.", now)
	canine := chunks.add("doc-b", 0, "A canine rested beside the fence.", now)

	kw := &fakeKeyword{results: []*store.KeywordResult{
		{ChunkID: fox, Score: 3.1, MatchedTerms: []string{"fox"}, Locations: []store.Span{{Start: 16, End: 19}}},
	}}
	vec := &fakeVector{results: []*store.VectorResult{
		{ChunkID: canine, Similarity: 0.82},
		{ChunkID: fox, Similarity: 0.40},
		{ChunkID: chunk.ID("unindexed", 0), Similarity: 0.10},
	}}
	o := NewOrchestrator(kw, vec, &fakeEmbedder{}, chunks, testConfig())

	// When: I search
	resp, err := o.Search(context.Background(), "fox", Options{})

	// Then: both documents are returned, fox first since it matched in both modes
	require.NoError(t, err)
	assert.False(t, resp.IsDegraded())
	assert.Equal(t, []string{"doc-a", "doc-b"}, resultDocs(resp))
	assert.True(t, resp.Results[0].InBoth)
	assert.Equal(t, []string{"fox"}, resp.Results[0].MatchedTerms)
	assert.Contains(t, resp.Results[0].Snippet, "fox")
	assert.Equal(t, "/notes/doc-a.md", resp.Results[0].Document.Path)
	assert.Equal(t, 1, resp.KeywordHits)
	assert.Equal(t, 3, resp.SemanticHits)
}

func TestOrchestrator_EmptyQuery(t *testing.T) {
	o := NewOrchestrator(&fakeKeyword{}, nil, nil, mapResolver{}, testConfig())

	_, err := o.Search(context.Background(), "   ", Options{})

	assert.ErrorIs(t, err, mserrors.ErrQueryEmpty)
}

func TestOrchestrator_EmbedderFailureDegradesToKeyword(t *testing.T) {
	// Given: the embedding backend is down
	chunks := mapResolver{}
	id := chunks.add("doc-a", 0, "fox notes", time.Now())
	kw := &fakeKeyword{results: []*store.KeywordResult{{ChunkID: id, Score: 1}}}
	o := NewOrchestrator(kw, &fakeVector{}, &fakeEmbedder{err: mserrors.ModelUnavailable("nomic-embed-text", errors.New("connection refused"))}, chunks, testConfig())

	// When: I search
	resp, err := o.Search(context.Background(), "fox", Options{})

	// Then: keyword results come back and the response is marked degraded
	require.NoError(t, err)
	assert.Equal(t, []Mode{ModeSemantic}, resp.Degraded)
	assert.Equal(t, []string{"doc-a"}, resultDocs(resp))
}

func TestOrchestrator_NoEmbedderIsKeywordOnly(t *testing.T) {
	chunks := mapResolver{}
	id := chunks.add("doc-a", 0, "fox notes", time.Now())
	o := NewOrchestrator(&fakeKeyword{results: []*store.KeywordResult{{ChunkID: id, Score: 1}}}, nil, nil, chunks, testConfig())

	resp, err := o.Search(context.Background(), "fox", Options{})

	require.NoError(t, err)
	assert.Equal(t, []Mode{ModeSemantic}, resp.Degraded)
	assert.Len(t, resp.Results, 1)
}

func TestOrchestrator_KeywordOnlyOptionSkipsEmbedding(t *testing.T) {
	chunks := mapResolver{}
	id := chunks.add("doc-a", 0, "fox notes", time.Now())
	emb := &fakeEmbedder{}
	o := NewOrchestrator(&fakeKeyword{results: []*store.KeywordResult{{ChunkID: id, Score: 1}}}, &fakeVector{}, emb, chunks, testConfig())

	_, err := o.Search(context.Background(), "fox", Options{KeywordOnly: true})

	require.NoError(t, err)
	assert.Zero(t, emb.calls.Load())
}

func TestOrchestrator_SlowModeTimesOutAndDegrades(t *testing.T) {
	// Given: semantic retrieval never finishes
	chunks := mapResolver{}
	id := chunks.add("doc-a", 0, "fox notes", time.Now())
	kw := &fakeKeyword{results: []*store.KeywordResult{{ChunkID: id, Score: 1}}}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	o := NewOrchestrator(kw, &fakeVector{}, &fakeEmbedder{block: true}, chunks, cfg)

	// When: I search
	start := time.Now()
	resp, err := o.Search(context.Background(), "fox", Options{})

	// Then: the keyword ranking is returned within the deadline
	require.NoError(t, err)
	assert.Equal(t, []Mode{ModeSemantic}, resp.Degraded)
	assert.Len(t, resp.Results, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOrchestrator_BothModesFail(t *testing.T) {
	t.Run("errors", func(t *testing.T) {
		o := NewOrchestrator(&fakeKeyword{err: errors.New("bleve: closed")}, &fakeVector{}, &fakeEmbedder{err: errors.New("down")}, mapResolver{}, testConfig())

		_, err := o.Search(context.Background(), "fox", Options{})

		require.Error(t, err)
		assert.Equal(t, mserrors.ErrCodeSearchFailed, mserrors.GetCode(err))
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := testConfig()
		cfg.Timeout = 30 * time.Millisecond
		o := NewOrchestrator(&fakeKeyword{block: true}, &fakeVector{}, &fakeEmbedder{block: true}, mapResolver{}, cfg)

		_, err := o.Search(context.Background(), "fox", Options{})

		assert.ErrorIs(t, err, mserrors.ErrQueryTimeout)
	})
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewOrchestrator(&fakeKeyword{block: true}, nil, nil, mapResolver{}, testConfig())

	_, err := o.Search(ctx, "fox", Options{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_DropsChunksMissingFromManifest(t *testing.T) {
	// Given: the keyword index still holds a chunk of a deleted document
	chunks := mapResolver{}
	live := chunks.add("doc-a", 0, "fox notes", time.Now())
	kw := &fakeKeyword{results: []*store.KeywordResult{
		{ChunkID: chunk.ID("deleted", 0), Score: 5},
		{ChunkID: live, Score: 1},
	}}
	o := NewOrchestrator(kw, nil, nil, chunks, testConfig())

	// When: I search
	resp, err := o.Search(context.Background(), "fox", Options{})

	// Then: only the live document is returned
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a"}, resultDocs(resp))
}

func TestOrchestrator_CollapsesToBestChunkPerDocument(t *testing.T) {
	now := time.Now()
	chunks := mapResolver{}
	a0 := chunks.add("doc-a", 0, "fox one", now)
	a1 := chunks.add("doc-a", 800, "fox two", now)
	b0 := chunks.add("doc-b", 0, "fox three", now)
	kw := &fakeKeyword{results: []*store.KeywordResult{
		{ChunkID: a1, Score: 9},
		{ChunkID: a0, Score: 8},
		{ChunkID: b0, Score: 1},
	}}

	t.Run("collapse", func(t *testing.T) {
		o := NewOrchestrator(kw, nil, nil, chunks, testConfig())

		resp, err := o.Search(context.Background(), "fox", Options{})

		require.NoError(t, err)
		assert.Equal(t, []string{"doc-a", "doc-b"}, resultDocs(resp))
		assert.Equal(t, a1, resp.Results[0].ChunkID)
	})

	t.Run("per chunk", func(t *testing.T) {
		cfg := testConfig()
		cfg.CollapseDocuments = false
		o := NewOrchestrator(kw, nil, nil, chunks, cfg)

		resp, err := o.Search(context.Background(), "fox", Options{})

		require.NoError(t, err)
		assert.Equal(t, []string{"doc-a", "doc-a", "doc-b"}, resultDocs(resp))
	})
}

func TestOrchestrator_TiesPreferRecentlyIndexed(t *testing.T) {
	// Given: two documents with identical scores
	old := time.Now().Add(-48 * time.Hour)
	chunks := mapResolver{}
	a := chunks.add("doc-a", 0, "fox", old)
	b := chunks.add("doc-b", 0, "fox", time.Now())
	kw := &fakeKeyword{results: []*store.KeywordResult{{ChunkID: a, Score: 2}, {ChunkID: b, Score: 2}}}
	o := NewOrchestrator(kw, nil, nil, chunks, testConfig())

	// When: I search
	resp, err := o.Search(context.Background(), "fox", Options{})

	// Then: the more recently indexed one ranks first
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-b", "doc-a"}, resultDocs(resp))
}

func TestOrchestrator_LimitIsClampedAndWidensCandidates(t *testing.T) {
	chunks := mapResolver{}
	var kwResults []*store.KeywordResult
	for i := 0; i < 10; i++ {
		id := chunks.add(string(rune('a'+i))+"-doc", 0, "fox", time.Now())
		kwResults = append(kwResults, &store.KeywordResult{ChunkID: id, Score: float64(10 - i)})
	}
	kw := &fakeKeyword{results: kwResults}
	cfg := testConfig()
	cfg.MaxLimit = 4
	o := NewOrchestrator(kw, nil, nil, chunks, cfg)

	resp, err := o.Search(context.Background(), "fox", Options{Limit: 50})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 4)
	assert.Equal(t, int64(minCandidates), kw.limit.Load())
}

func TestOrchestrator_RecencyBlend(t *testing.T) {
	// Given: an old document that scores slightly higher than a fresh one
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	chunks := mapResolver{}
	oldID := chunks.add("old", 0, "fox", now.AddDate(-3, 0, 0))
	newID := chunks.add("new", 0, "fox", now.Add(-time.Hour))
	kw := &fakeKeyword{results: []*store.KeywordResult{
		{ChunkID: oldID, Score: 10},
		{ChunkID: newID, Score: 9},
		{ChunkID: chunk.ID("floor", 0), Score: 1},
	}}

	// When: recency is blended in
	cfg := testConfig()
	cfg.RecencyWeight = 0.5
	o := NewOrchestrator(kw, nil, nil, chunks, cfg, WithClock(func() time.Time { return now }))
	resp, err := o.Search(context.Background(), "fox", Options{})

	// Then: the fresh document overtakes the old one
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, resultDocs(resp))

	// And without recency the raw order holds
	plain := NewOrchestrator(kw, nil, nil, chunks, testConfig(), WithClock(func() time.Time { return now }))
	resp, err = plain.Search(context.Background(), "fox", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, resultDocs(resp))
}

func TestOrchestrator_PerQueryWeights(t *testing.T) {
	now := time.Now()
	chunks := mapResolver{}
	lex := chunks.add("lexical", 0, "fox", now)
	sem := chunks.add("semantic", 0, "canine", now)
	kw := &fakeKeyword{results: []*store.KeywordResult{{ChunkID: lex, Score: 5}, {ChunkID: sem, Score: 1}}}
	vec := &fakeVector{results: []*store.VectorResult{{ChunkID: sem, Similarity: 0.9}, {ChunkID: lex, Similarity: 0.1}}}
	o := NewOrchestrator(kw, vec, &fakeEmbedder{}, chunks, testConfig())

	resp, err := o.Search(context.Background(), "fox", Options{Weights: &Weights{Keyword: 0.1, Semantic: 0.9}})

	require.NoError(t, err)
	assert.Equal(t, "semantic", resp.Results[0].Document.ID)
}
