package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dillonfkhanna/multi-search/internal/index"
)

// StatusJSON is the JSON form of index.Status.
type StatusJSON struct {
	Root            string    `json:"root"`
	Documents       int       `json:"documents"`
	Chunks          int       `json:"chunks"`
	KeywordOnly     int       `json:"keyword_only_documents"`
	KeywordBackend  string    `json:"keyword_backend"`
	Vectors         int       `json:"vectors"`
	Dimensions      int       `json:"dimensions,omitempty"`
	ModelVersion    string    `json:"model_version,omitempty"`
	SemanticEnabled bool      `json:"semantic_enabled"`
	LastIndexed     time.Time `json:"last_indexed,omitzero"`
	DiskBytes       int64     `json:"disk_bytes"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(cfg Config) *StatusRenderer {
	return &StatusRenderer{out: cfg.Output, styles: GetStyles(cfg.NoColor)}
}

// Render displays st for a human reader.
func (r *StatusRenderer) Render(st *index.Status) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+st.Root))

	_, _ = fmt.Fprintf(r.out, "  Documents:    %d\n", st.Documents)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", st.Chunks)
	if !st.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(st.LastIndexed))
	}
	_, _ = fmt.Fprintf(r.out, "  Disk:         %s\n", FormatBytes(st.DiskBytes))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Keyword:")
	_, _ = fmt.Fprintf(r.out, "    Backend: %s\n", st.KeywordBackend)
	_, _ = fmt.Fprintf(r.out, "    Chunks:  %d\n", st.KeywordChunks)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Semantic:")
	if !st.SemanticEnabled {
		_, _ = fmt.Fprintf(r.out, "    Status:  %s\n", r.styles.Warning.Render("disabled"))
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "    Status:  %s\n", r.styles.Success.Render("ready"))
	_, _ = fmt.Fprintf(r.out, "    Model:   %s\n", st.ModelVersion)
	_, _ = fmt.Fprintf(r.out, "    Vectors: %d (%d dims)\n", st.Vectors, st.Dimensions)
	if st.KeywordOnly > 0 {
		_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Warning.Render(
			fmt.Sprintf("%d document%s awaiting embeddings", st.KeywordOnly, plural(st.KeywordOnly))))
	}
	return nil
}

// RenderJSON outputs st as JSON.
func (r *StatusRenderer) RenderJSON(st *index.Status) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(StatusJSON{
		Root:            st.Root,
		Documents:       st.Documents,
		Chunks:          st.Chunks,
		KeywordOnly:     st.KeywordOnly,
		KeywordBackend:  st.KeywordBackend,
		Vectors:         st.Vectors,
		Dimensions:      st.Dimensions,
		ModelVersion:    st.ModelVersion,
		SemanticEnabled: st.SemanticEnabled,
		LastIndexed:     st.LastIndexed,
		DiskBytes:       st.DiskBytes,
	})
}

// formatTime formats t relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
