package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_PutGet(t *testing.T) {
	cache, err := OpenEmbeddingCache("")
	require.NoError(t, err)
	defer cache.Close()

	// Given: a vector stored for one model version
	require.NoError(t, cache.Put("static:hash:3", []string{"h1"}, [][]float32{{0.1, -0.2, 0.3}}))

	// Then: the same key hits, bit-identical
	vec, ok, err := cache.Get("static:hash:3", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, -0.2, 0.3}, vec)

	// And: another model version misses
	_, ok, err = cache.Get("ollama:nomic-embed-text:768", "h1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddingCache_CountAndDropModel(t *testing.T) {
	cache, err := OpenEmbeddingCache("")
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Put("m1", []string{"a", "b"}, [][]float32{{1}, {2}}))
	require.NoError(t, cache.Put("m1", []string{"a"}, [][]float32{{1}}))
	require.NoError(t, cache.Put("m2", []string{"a"}, [][]float32{{3}}))

	n, err := cache.Count("m1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one entry per (model, hash)")

	require.NoError(t, cache.DropModel("m1"))
	n, err = cache.Count("m1")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = cache.Count("m2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmbeddingCache_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "embeddings")

	cache, err := OpenEmbeddingCache(dir)
	require.NoError(t, err)
	require.NoError(t, cache.Put("m", []string{"h"}, [][]float32{{4, 5}}))
	require.NoError(t, cache.Close())

	reopened, err := OpenEmbeddingCache(dir)
	require.NoError(t, err)
	defer reopened.Close()

	vec, ok, err := reopened.Get("m", "h")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{4, 5}, vec)
}

func TestOpenEmbeddingCache_ResetsUnreadableDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "embeddings")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MANIFEST"), []byte("garbage"), 0o644))

	cache, err := OpenEmbeddingCache(dir)
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get("m", "h")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddingCache_PutLengthMismatch(t *testing.T) {
	cache, err := OpenEmbeddingCache("")
	require.NoError(t, err)
	defer cache.Close()

	assert.Error(t, cache.Put("m", []string{"a", "b"}, [][]float32{{1}}))
}
