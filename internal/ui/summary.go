package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/dillonfkhanna/multi-search/internal/index"
)

// SummaryRenderer reports the outcome of ingestion passes.
type SummaryRenderer struct {
	out     io.Writer
	styles  Styles
	verbose bool
}

// NewSummaryRenderer creates a summary renderer. Verbose also lists every
// failed document.
func NewSummaryRenderer(cfg Config, verbose bool) *SummaryRenderer {
	return &SummaryRenderer{out: cfg.Output, styles: GetStyles(cfg.NoColor), verbose: verbose}
}

// Complete writes a one-line summary of res followed by any warnings.
func (r *SummaryRenderer) Complete(res *index.IngestResult) {
	_, _ = fmt.Fprintf(r.out, "%s %d indexed, %d unchanged, %d deleted in %s\n",
		r.styles.Success.Render("Done:"),
		res.Indexed, res.Skipped, res.Deleted, res.Duration.Round(100*time.Millisecond))

	if e := res.Embeddings; e.Chunks > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render(fmt.Sprintf(
			"  embeddings: %d chunks, %d computed, %d cached", e.Chunks, e.Computed, e.MemoryHits+e.CacheHits)))
	}
	if res.Degraded {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render(
			"  embedding model unavailable: remaining documents indexed keyword-only"))
	} else if res.KeywordOnly > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render(
			fmt.Sprintf("  %d document%s indexed keyword-only", res.KeywordOnly, plural(res.KeywordOnly))))
	}

	if len(res.Failed) == 0 {
		return
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Error.Render(
		fmt.Sprintf("  %d document%s failed", len(res.Failed), plural(len(res.Failed)))))
	if !r.verbose {
		return
	}
	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(r.out, "    %s: %v\n", f.Path, f.Err)
	}
}
