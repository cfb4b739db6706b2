package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/coder/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

func newVectorIndex(t *testing.T, cfg VectorIndexConfig) *HNSWIndex {
	t.Helper()
	idx, err := OpenHNSWIndex("", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSWIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t, DefaultVectorIndexConfig(4))

	// Given: two documents
	require.NoError(t, idx.Upsert(ctx, "A", []string{"A:0", "A:10"}, [][]float32{{1, 0, 0, 0}, {0.9, 0.1, 0, 0}}))
	require.NoError(t, idx.Upsert(ctx, "B", []string{"B:0"}, [][]float32{{0, 1, 0, 0}}))

	// When: searching near A:0
	results, err := idx.Search(ctx, []float32{2, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: exact match first with cosine similarity ~1
	require.Len(t, results, 2)
	assert.Equal(t, "A:0", results[0].ChunkID)
	assert.Equal(t, "A:10", results[1].ChunkID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	assert.Equal(t, 3, idx.Count())
}

func TestHNSWIndex_UpsertReplacesDocumentVectors(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t, DefaultVectorIndexConfig(2))

	require.NoError(t, idx.Upsert(ctx, "A", []string{"A:0", "A:5"}, [][]float32{{1, 0}, {1, 1}}))
	require.NoError(t, idx.Upsert(ctx, "A", []string{"A:0"}, [][]float32{{0, 1}}))

	assert.Equal(t, []string{"A:0"}, idx.AllChunkIDs())
	assert.False(t, idx.Contains("A:5"))

	results, err := idx.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestHNSWIndex_Remove(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t, DefaultVectorIndexConfig(2))
	require.NoError(t, idx.Upsert(ctx, "A", []string{"A:0"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, "B", []string{"B:0"}, [][]float32{{0, 1}}))

	require.NoError(t, idx.Remove(ctx, "B"))

	assert.False(t, idx.HasDocument("B"))
	assert.True(t, idx.HasDocument("A"))
	results, err := idx.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A:0", results[0].ChunkID)
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t, DefaultVectorIndexConfig(3))

	err := idx.Upsert(ctx, "A", []string{"A:0"}, [][]float32{{1, 0}})
	var dm ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Expected)

	require.NoError(t, idx.Upsert(ctx, "A", []string{"A:0"}, [][]float32{{1, 0, 0}}))
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.True(t, errors.As(err, &dm))
}

func TestHNSWIndex_AdoptsDimensionsFromFirstUpsert(t *testing.T) {
	idx := newVectorIndex(t, VectorIndexConfig{})
	require.NoError(t, idx.Upsert(context.Background(), "A", []string{"A:0"}, [][]float32{{1, 2, 3}}))
	assert.Equal(t, 3, idx.Dimensions())
}

func randomVectors(rng *rand.Rand, n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

// bruteForceTopK ranks vectors against q the way the index scores them.
func bruteForceTopK(q []float32, ids []string, vectors [][]float32, k int) []string {
	nq := append([]float32(nil), q...)
	normalizeVectorInPlace(nq)
	type scored struct {
		id  string
		sim float64
	}
	all := make([]scored, len(ids))
	for i, v := range vectors {
		nv := append([]float32(nil), v...)
		normalizeVectorInPlace(nv)
		all[i] = scored{ids[i], float64(1 - hnsw.CosineDistance(nq, nv))}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].sim != all[j].sim {
			return all[i].sim > all[j].sim
		}
		return all[i].id < all[j].id
	})
	top := make([]string, 0, k)
	for _, s := range all[:min(k, len(all))] {
		top = append(top, s.id)
	}
	return top
}

func TestHNSWIndex_SearchReturnsTrueTopK(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	const dims, n, k = 64, 2000, 10

	// Given: a few thousand random high-dimensional vectors under the
	// default exact scan threshold
	idx := newVectorIndex(t, DefaultVectorIndexConfig(dims))
	vectors := randomVectors(rng, n, dims)
	ids := make([]string, n)
	for i, v := range vectors {
		doc := fmt.Sprintf("d%04d", i)
		ids[i] = doc + ":0"
		require.NoError(t, idx.Upsert(ctx, doc, []string{ids[i]}, [][]float32{v}))
	}

	// When: querying with stored vectors and with fresh ones
	queries := append(vectors[:25:25], randomVectors(rng, 25, dims)...)
	for qi, q := range queries {
		results, err := idx.Search(ctx, q, k)
		require.NoError(t, err)

		// Then: recall@k is 1.0 against a brute-force ranking
		got := make([]string, len(results))
		for i, r := range results {
			got[i] = r.ChunkID
		}
		assert.Equal(t, bruteForceTopK(q, ids, vectors, k), got, "query %d", qi)
		if qi < 25 {
			assert.Equal(t, ids[qi], got[0], "stored vector is its own nearest neighbour")
		}
	}
}

func TestHNSWIndex_GraphModeReranksCandidates(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(3, 5))
	const dims, n, k = 32, 500, 10

	// Given: a graph-mode index with one replaced vector
	cfg := DefaultVectorIndexConfig(dims)
	cfg.ExactScanThreshold = 1
	idx := newVectorIndex(t, cfg)
	vectors := randomVectors(rng, n, dims)
	byID := make(map[string][]float32, n)
	ids := make([]string, n)
	for i, v := range vectors {
		doc := fmt.Sprintf("d%04d", i)
		ids[i] = doc + ":0"
		require.NoError(t, idx.Upsert(ctx, doc, []string{ids[i]}, [][]float32{v}))
		byID[ids[i]] = v
	}
	replacement := randomVectors(rng, 1, dims)[0]
	require.NoError(t, idx.Upsert(ctx, "d0005", []string{"d0005:0"}, [][]float32{replacement}))
	byID["d0005:0"] = replacement
	vectors[5] = replacement
	require.Equal(t, 1, idx.Stats().Orphans)

	// When: searching through the graph
	q := randomVectors(rng, 1, dims)[0]
	results, err := idx.Search(ctx, q, k)
	require.NoError(t, err)

	// Then: results are live, unique, exactly scored and ordered
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), k)
	nq := append([]float32(nil), q...)
	normalizeVectorInPlace(nq)
	seen := map[string]bool{}
	for i, r := range results {
		assert.False(t, seen[r.ChunkID], "duplicate %s", r.ChunkID)
		seen[r.ChunkID] = true
		v, ok := byID[r.ChunkID]
		require.True(t, ok)
		nv := append([]float32(nil), v...)
		normalizeVectorInPlace(nv)
		assert.InDelta(t, 1-hnsw.CosineDistance(nq, nv), r.Similarity, 1e-5)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Similarity, r.Similarity)
		}
	}

	want := bruteForceTopK(q, ids, vectors, k)
	hits := 0
	for _, id := range want {
		if seen[id] {
			hits++
		}
	}
	t.Logf("graph recall@%d: %.2f", k, float64(hits)/float64(k))
}

func TestGraphCandidates(t *testing.T) {
	tests := []struct {
		name                string
		k, orphans, ef, want int
	}{
		{"ef dominates small k", 3, 0, 64, 64},
		{"orphans widen the set", 10, 100, 64, 110},
		{"large k oversampled", 50, 0, 64, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, graphCandidates(tt.k, tt.orphans, tt.ef))
		})
	}
}

func TestHNSWIndex_SaveAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	idx, err := OpenHNSWIndex(path, DefaultVectorIndexConfig(2))
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "A", []string{"A:0", "A:7"}, [][]float32{{1, 0}, {0.5, 0.5}}))
	require.NoError(t, idx.Upsert(ctx, "B", []string{"B:0"}, [][]float32{{0, 1}}))
	require.NoError(t, idx.Save())
	require.NoError(t, idx.Close())

	reopened, err := OpenHNSWIndex(path, DefaultVectorIndexConfig(2))
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []string{"A:0", "A:7", "B:0"}, reopened.AllChunkIDs())
	assert.True(t, reopened.HasDocument("A"))

	// Document grouping survives the reload.
	require.NoError(t, reopened.Remove(ctx, "A"))
	assert.Equal(t, []string{"B:0"}, reopened.AllChunkIDs())
}

func TestOpenHNSWIndex_DimensionChangeReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	idx, err := OpenHNSWIndex(path, DefaultVectorIndexConfig(2))
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), "A", []string{"A:0"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Save())
	require.NoError(t, idx.Close())

	_, err = OpenHNSWIndex(path, DefaultVectorIndexConfig(768))

	var dm ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Got)
	require.NoError(t, RemoveVectorFiles(path))
	assert.NoFileExists(t, path)
}

func TestOpenHNSWIndex_TruncatedMetaIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, os.WriteFile(path, []byte("graph"), 0o644))
	require.NoError(t, os.WriteFile(path+".meta", []byte{0x01}, 0o644))

	_, err := OpenHNSWIndex(path, DefaultVectorIndexConfig(2))

	assert.True(t, errors.Is(err, mserrors.ErrCorruptIndex))
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx := newVectorIndex(t, DefaultVectorIndexConfig(2))
	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
