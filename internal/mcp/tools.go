package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query       string `json:"query" jsonschema:"the search query to execute"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	KeywordOnly bool   `json:"keyword_only,omitempty" jsonschema:"skip semantic search and rank by keywords alone"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked search results, one per document"`
	// Degraded lists the retrieval modes that failed for this query.
	Degraded []string `json:"degraded,omitempty" jsonschema:"retrieval modes that failed; results come from the rest"`
	TookMS   int64    `json:"took_ms" jsonschema:"query latency in milliseconds"`
}

// SearchResultOutput is a single result with the scores that explain it.
type SearchResultOutput struct {
	Path          string   `json:"path" jsonschema:"absolute path of the matching document"`
	Title         string   `json:"title,omitempty" jsonschema:"document title, if one was found"`
	Snippet       string   `json:"snippet" jsonschema:"best matching passage of the document"`
	Score         float64  `json:"score" jsonschema:"fused relevance score"`
	KeywordScore  float64  `json:"keyword_score" jsonschema:"normalized keyword score, 0 if absent from keyword results"`
	SemanticScore float64  `json:"semantic_score" jsonschema:"normalized semantic score, 0 if absent from semantic results"`
	InBothLists   bool     `json:"in_both_lists,omitempty" jsonschema:"true if found by both keyword and semantic search"`
	MatchedTerms  []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched this result"`
	MatchReason   string   `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this result matched"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Root       string        `json:"root"`
	Stats      IndexStats    `json:"stats"`
	Embeddings EmbeddingInfo `json:"embeddings"`
}

// IndexStats contains document and chunk counts.
type IndexStats struct {
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	KeywordOnly    int    `json:"keyword_only_documents"`
	KeywordBackend string `json:"keyword_backend"`
	KeywordChunks  int    `json:"keyword_chunks"`
	Vectors        int    `json:"vectors"`
	MaxChunkChars  int    `json:"max_chunk_chars"`
	OverlapChars   int    `json:"overlap_chars"`
}

// EmbeddingInfo describes the active embedding model so clients can
// adjust their query strategy.
type EmbeddingInfo struct {
	Enabled      bool   `json:"enabled"`
	ModelVersion string `json:"model_version,omitempty"`
	Dimensions   int    `json:"dimensions,omitempty"`
	// SemanticQuality is "high" for a model backend, "low" for static
	// embeddings and "none" when running keyword-only.
	SemanticQuality string `json:"semantic_quality"`
}
