package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dillonfkhanna/multi-search/internal/search"
)

// ResultJSON is the JSON form of one search result.
type ResultJSON struct {
	Path          string   `json:"path"`
	Title         string   `json:"title,omitempty"`
	ChunkID       string   `json:"chunk_id"`
	Snippet       string   `json:"snippet"`
	Score         float64  `json:"score"`
	KeywordScore  float64  `json:"keyword_score"`
	SemanticScore float64  `json:"semantic_score"`
	InBoth        bool     `json:"in_both"`
	MatchedTerms  []string `json:"matched_terms,omitempty"`
}

// ResponseJSON is the JSON form of a search response.
type ResponseJSON struct {
	Query    string       `json:"query"`
	Results  []ResultJSON `json:"results"`
	Degraded []string     `json:"degraded,omitempty"`
	TookMS   int64        `json:"took_ms"`
}

// ResultsRenderer displays search responses.
type ResultsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewResultsRenderer creates a results renderer.
func NewResultsRenderer(cfg Config) *ResultsRenderer {
	return &ResultsRenderer{out: cfg.Output, styles: GetStyles(cfg.NoColor)}
}

// Render writes resp for a human reader.
func (r *ResultsRenderer) Render(query string, resp *search.Response) error {
	for _, m := range resp.Degraded {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render(
			fmt.Sprintf("warning: %s search unavailable, results are partial", m)))
	}
	if len(resp.Results) == 0 {
		_, _ = fmt.Fprintf(r.out, "No results for %q\n", query)
		return nil
	}

	for i, res := range resp.Results {
		_, _ = fmt.Fprintf(r.out, "%s %s %s\n",
			r.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			r.styles.Path.Render(res.Document.Path),
			r.styles.Score.Render(fmt.Sprintf("(%.3f)", res.Score)))
		if res.Document.Title != "" {
			_, _ = fmt.Fprintf(r.out, "    %s\n", res.Document.Title)
		}
		for _, line := range strings.Split(strings.TrimSpace(res.Snippet), "\n") {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Snippet.Render(line))
		}
		_, _ = fmt.Fprintln(r.out)
	}

	_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render(fmt.Sprintf("%d result%s in %s",
		len(resp.Results), plural(len(resp.Results)), resp.Took.Round(time.Millisecond))))
	return nil
}

// RenderJSON writes resp as indented JSON.
func (r *ResultsRenderer) RenderJSON(query string, resp *search.Response) error {
	out := ResponseJSON{
		Query:   query,
		Results: make([]ResultJSON, 0, len(resp.Results)),
		TookMS:  resp.Took.Milliseconds(),
	}
	for _, res := range resp.Results {
		out.Results = append(out.Results, ResultJSON{
			Path:          res.Document.Path,
			Title:         res.Document.Title,
			ChunkID:       res.ChunkID,
			Snippet:       res.Snippet,
			Score:         res.Score,
			KeywordScore:  res.KeywordScore,
			SemanticScore: res.SemanticScore,
			InBoth:        res.InBoth,
			MatchedTerms:  res.MatchedTerms,
		})
	}
	for _, m := range resp.Degraded {
		out.Degraded = append(out.Degraded, string(m))
	}

	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
