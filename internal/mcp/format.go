package mcp

import (
	"fmt"
	"strings"

	"github.com/dillonfkhanna/multi-search/internal/embed"
	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/search"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// FormatSearchResults formats a search response as markdown.
func FormatSearchResults(query string, resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		msg := fmt.Sprintf("No results found for \"%s\"", query)
		if resp != nil && resp.IsDegraded() {
			msg += fmt.Sprintf(" (%s search unavailable)", joinModes(resp.Degraded))
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	if resp.IsDegraded() {
		fmt.Fprintf(&sb, "> %s search was unavailable; results are partial.\n\n", joinModes(resp.Degraded))
	}

	for i, r := range resp.Results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r *search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, r.Document.Path, r.Score)
	if r.Document.Title != "" {
		fmt.Fprintf(sb, "**%s**\n", r.Document.Title)
	}
	if reason := matchReason(r); reason != "" {
		fmt.Fprintf(sb, "_%s_\n", reason)
	}
	fmt.Fprintf(sb, "\n```text\n%s\n```\n\n", r.Snippet)
}

func joinModes(modes []search.Mode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// clampLimit returns defaultVal for a non-positive limit, otherwise limit
// clamped to [lo, hi].
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(max(limit, lo), hi)
}

// ToSearchResultOutput converts a search result to the tool output format.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		Path:          r.Document.Path,
		Title:         r.Document.Title,
		Snippet:       r.Snippet,
		Score:         r.Score,
		KeywordScore:  r.KeywordScore,
		SemanticScore: r.SemanticScore,
		InBothLists:   r.InBoth,
		MatchedTerms:  r.MatchedTerms,
		MatchReason:   matchReason(r),
	}
}

// ToIndexStatusOutput converts index statistics to the tool output format.
func ToIndexStatusOutput(st *index.Status) IndexStatusOutput {
	out := IndexStatusOutput{
		Root: st.Root,
		Stats: IndexStats{
			Documents:      st.Documents,
			Chunks:         st.Chunks,
			KeywordOnly:    st.KeywordOnly,
			KeywordBackend: st.KeywordBackend,
			KeywordChunks:  st.KeywordChunks,
			Vectors:        st.Vectors,
			MaxChunkChars:  st.MaxChunkChars,
			OverlapChars:   st.OverlapChars,
		},
		Embeddings: EmbeddingInfo{
			Enabled:         st.SemanticEnabled,
			ModelVersion:    st.ModelVersion,
			Dimensions:      st.Dimensions,
			SemanticQuality: "none",
		},
	}
	if st.SemanticEnabled {
		out.Embeddings.SemanticQuality = "high"
		if strings.HasPrefix(st.ModelVersion, string(embed.ProviderStatic)+":") {
			out.Embeddings.SemanticQuality = "low"
		}
	}
	return out
}

// matchReason explains which retrieval modes found r.
func matchReason(r *search.Result) string {
	var parts []string
	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 3 {
			terms = terms[:3]
		}
		parts = append(parts, fmt.Sprintf("matches: %s", strings.Join(terms, ", ")))
	}
	switch {
	case r.InBoth:
		parts = append(parts, "keyword + semantic match")
	case r.SemanticScore > 0:
		parts = append(parts, "semantic match")
	case r.KeywordScore > 0:
		parts = append(parts, "keyword match")
	}
	return strings.Join(parts, "; ")
}
