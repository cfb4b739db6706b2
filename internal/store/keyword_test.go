package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

var backends = []KeywordBackend{BackendBleve, BackendSQLite}

func newKeywordIndex(t *testing.T, backend KeywordBackend) KeywordIndex {
	t.Helper()
	idx, err := NewKeywordIndex("", backend, DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func oneChunk(docID, text string) []chunk.Chunk {
	return chunk.New().Chunk(docID, text)
}

func resultIDs(results []*KeywordResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestKeywordIndex_FoxScenario(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			idx := newKeywordIndex(t, backend)

			// Given: three single-chunk documents
			require.NoError(t, idx.AddOrReplace(ctx, "A", oneChunk("A", "red fox jumps")))
			require.NoError(t, idx.AddOrReplace(ctx, "B", oneChunk("B", "quick brown fox")))
			require.NoError(t, idx.AddOrReplace(ctx, "C", oneChunk("C", "lazy dog sleeps")))

			// When: searching for "fox"
			results, err := idx.Search(ctx, "fox", 10)
			require.NoError(t, err)

			// Then: A and B match, C does not
			assert.ElementsMatch(t, []string{"A:0", "B:0"}, resultIDs(results))
			for _, r := range results {
				assert.Greater(t, r.Score, 0.0)
				require.NotEmpty(t, r.Locations)
			}
		})
	}
}

func TestKeywordIndex_StemmingAndLocations(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			idx := newKeywordIndex(t, backend)
			text := "The dog was jumping over fences"
			require.NoError(t, idx.AddOrReplace(ctx, "D", oneChunk("D", text)))

			results, err := idx.Search(ctx, "jumps", 5)

			require.NoError(t, err)
			require.Len(t, results, 1)
			require.NotEmpty(t, results[0].Locations)
			loc := results[0].Locations[0]
			assert.Equal(t, "jumping", text[loc.Start:loc.End])
		})
	}
}

func TestKeywordIndex_AddOrReplaceRemovesStalePostings(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			idx := newKeywordIndex(t, backend)

			// Given: a multi-chunk document about foxes
			long := chunk.New(chunk.WithMaxChunkChars(20), chunk.WithOverlapChars(0)).
				Chunk("A", "fox fox fox fox fox. fox fox fox fox fox. fox fox fox.")
			require.Greater(t, len(long), 1)
			require.NoError(t, idx.AddOrReplace(ctx, "A", long))

			// When: the document is replaced by a single chunk about dogs
			require.NoError(t, idx.AddOrReplace(ctx, "A", oneChunk("A", "dog")))

			// Then: no fox posting survives and only the new chunk exists
			results, err := idx.Search(ctx, "fox", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			ids, err := idx.AllChunkIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"A:0"}, ids)
			assert.Equal(t, 1, idx.Stats().ChunkCount)
		})
	}
}

func TestKeywordIndex_RemoveDocument(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			idx := newKeywordIndex(t, backend)
			require.NoError(t, idx.AddOrReplace(ctx, "A", oneChunk("A", "red fox jumps")))
			require.NoError(t, idx.AddOrReplace(ctx, "B", oneChunk("B", "quick brown fox")))

			require.NoError(t, idx.Remove(ctx, "B"))
			require.NoError(t, idx.Remove(ctx, "missing"))

			results, err := idx.Search(ctx, "fox", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"A:0"}, resultIDs(results))
		})
	}
}

func TestKeywordIndex_DeterministicOrdering(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			idx := newKeywordIndex(t, backend)
			// Identical texts score identically; ties fall back to chunk id.
			for _, id := range []string{"c", "a", "b"} {
				require.NoError(t, idx.AddOrReplace(ctx, id, oneChunk(id, "same words here")))
			}

			first, err := idx.Search(ctx, "words", 10)
			require.NoError(t, err)
			second, err := idx.Search(ctx, "words", 10)
			require.NoError(t, err)

			assert.Equal(t, []string{"a:0", "b:0", "c:0"}, resultIDs(first))
			assert.Equal(t, resultIDs(first), resultIDs(second))
		})
	}
}

func TestKeywordIndex_EmptyAndStopWordQueries(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			idx := newKeywordIndex(t, backend)
			require.NoError(t, idx.AddOrReplace(ctx, "A", oneChunk("A", "the fox")))

			for _, q := range []string{"", "   ", "the"} {
				results, err := idx.Search(ctx, q, 10)
				require.NoError(t, err)
				assert.Empty(t, results, "query %q", q)
			}
		})
	}
}

func TestKeywordIndex_ClosedReturnsErrIndexClosed(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			idx, err := NewKeywordIndex("", backend, DefaultBM25Config())
			require.NoError(t, err)
			require.NoError(t, idx.Close())
			require.NoError(t, idx.Close())

			_, err = idx.Search(context.Background(), "fox", 1)
			assert.ErrorIs(t, err, mserrors.ErrIndexClosed)
		})
	}
}

func TestKeywordIndex_PersistsAcrossReopen(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			root := t.TempDir()

			idx, err := NewKeywordIndex(root, backend, DefaultBM25Config())
			require.NoError(t, err)
			require.NoError(t, idx.AddOrReplace(ctx, "A", oneChunk("A", "red fox jumps")))
			require.NoError(t, idx.Close())

			reopened, err := NewKeywordIndex(root, backend, DefaultBM25Config())
			require.NoError(t, err)
			defer reopened.Close()

			results, err := reopened.Search(ctx, "fox", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"A:0"}, resultIDs(results))
		})
	}
}

func TestNewBleveIndex_MissingMetaIsCorruption(t *testing.T) {
	// Given: an index directory without index_meta.json
	root := t.TempDir()
	path := KeywordIndexPath(root, BackendBleve)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "store"), []byte("junk"), 0o644))

	// When: opening
	_, err := NewKeywordIndex(root, BackendBleve, DefaultBM25Config())

	// Then: corruption is surfaced and the directory is left alone
	require.Error(t, err)
	assert.True(t, errors.Is(err, mserrors.ErrCorruptIndex))
	assert.DirExists(t, path)
}

func TestNewSQLiteIndex_GarbageFileIsCorruption(t *testing.T) {
	root := t.TempDir()
	path := KeywordIndexPath(root, BackendSQLite)
	require.NoError(t, os.WriteFile(path, []byte("definitely not a database file, only some bytes"), 0o644))

	_, err := NewKeywordIndex(root, BackendSQLite, DefaultBM25Config())

	require.Error(t, err)
	assert.True(t, errors.Is(err, mserrors.ErrCorruptIndex))
}

func TestNewKeywordIndex_UnknownBackend(t *testing.T) {
	_, err := NewKeywordIndex("", "lucene", DefaultBM25Config())
	assert.Error(t, err)
}

func TestParseHighlight(t *testing.T) {
	terms, spans := parseHighlight("the \x01Fox\x02 and the \x01fox\x02")

	assert.Equal(t, []string{"fox"}, terms)
	assert.Equal(t, []Span{{Start: 4, End: 7}, {Start: 16, End: 19}}, spans)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input  string
		expect []string
	}{
		{"hello world", []string{"hello", "world"}},
		{"getUserById", []string{"get", "user", "by", "id"}},
		{"café au-lait, 42!", []string{"café", "au", "lait", "42"}},
		{"a b c", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}
