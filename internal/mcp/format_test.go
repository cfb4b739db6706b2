package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/search"
)

func result(path string, score, kw, sem float64, terms ...string) *search.Result {
	return &search.Result{
		Document:      search.DocumentRef{Path: path},
		Snippet:       "snippet of " + path,
		Score:         score,
		KeywordScore:  kw,
		SemanticScore: sem,
		InBoth:        kw > 0 && sem > 0,
		MatchedTerms:  terms,
	}
}

func TestFormatSearchResults_Markdown(t *testing.T) {
	// Given: two results
	resp := &search.Response{Results: []*search.Result{
		result("/notes/fox.md", 0.91, 1, 0.8, "fox"),
		result("/notes/dog.md", 0.40, 0, 1),
	}}
	resp.Results[0].Document.Title = "Foxes"

	// When: formatting
	md := FormatSearchResults("fox", resp)

	// Then: each result gets a numbered heading with its score
	assert.Contains(t, md, `## Search Results for "fox"`)
	assert.Contains(t, md, "Found 2 results")
	assert.Contains(t, md, "### 1. /notes/fox.md (score: 0.91)")
	assert.Contains(t, md, "**Foxes**")
	assert.Contains(t, md, "_matches: fox; keyword + semantic match_")
	assert.Contains(t, md, "### 2. /notes/dog.md (score: 0.40)")
	assert.Contains(t, md, "snippet of /notes/dog.md")
	assert.NotContains(t, md, "unavailable")
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "fox"`, FormatSearchResults("fox", &search.Response{}))
	assert.Equal(t, `No results found for "fox"`, FormatSearchResults("fox", nil))
}

func TestFormatSearchResults_Degraded(t *testing.T) {
	degraded := []search.Mode{search.ModeSemantic}

	empty := FormatSearchResults("fox", &search.Response{Degraded: degraded})
	partial := FormatSearchResults("fox", &search.Response{
		Results:  []*search.Result{result("/a.md", 1, 1, 0)},
		Degraded: degraded,
	})

	assert.Contains(t, empty, "(semantic search unavailable)")
	assert.Contains(t, partial, "Found 1 result\n")
	assert.Contains(t, partial, "semantic search was unavailable")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 10},
		{-5, 10},
		{1, 1},
		{25, 25},
		{50, 50},
		{500, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.in, defaultLimit, 1, maxLimit), "limit %d", tt.in)
	}
}

func TestToSearchResultOutput(t *testing.T) {
	r := result("/notes/fox.md", 0.7, 0.5, 0.9, "red", "fox")

	out := ToSearchResultOutput(r)

	assert.Equal(t, "/notes/fox.md", out.Path)
	assert.Equal(t, 0.7, out.Score)
	assert.Equal(t, 0.5, out.KeywordScore)
	assert.Equal(t, 0.9, out.SemanticScore)
	assert.True(t, out.InBothLists)
	assert.Equal(t, []string{"red", "fox"}, out.MatchedTerms)
	assert.Equal(t, "matches: red, fox; keyword + semantic match", out.MatchReason)
	assert.Equal(t, SearchResultOutput{}, ToSearchResultOutput(nil))
}

func TestMatchReason(t *testing.T) {
	assert.Equal(t, "semantic match", matchReason(result("/a", 1, 0, 1)))
	assert.Equal(t, "matches: a, b, c; keyword match", matchReason(result("/a", 1, 1, 0, "a", "b", "c", "d")))
	assert.Empty(t, matchReason(result("/a", 0, 0, 0)))
}

func TestToIndexStatusOutput_SemanticQuality(t *testing.T) {
	tests := []struct {
		name string
		st   index.Status
		want string
	}{
		{"keyword only", index.Status{}, "none"},
		{"static", index.Status{SemanticEnabled: true, ModelVersion: "static:static:256", Dimensions: 256}, "low"},
		{"ollama", index.Status{SemanticEnabled: true, ModelVersion: "ollama:nomic-embed-text:768", Dimensions: 768}, "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ToIndexStatusOutput(&tt.st)

			assert.Equal(t, tt.want, out.Embeddings.SemanticQuality)
			assert.Equal(t, tt.st.SemanticEnabled, out.Embeddings.Enabled)
			assert.Equal(t, tt.st.Dimensions, out.Embeddings.Dimensions)
		})
	}
}
