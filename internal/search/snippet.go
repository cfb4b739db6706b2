package search

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dillonfkhanna/multi-search/internal/store"
)

// DefaultSnippetChars is the snippet window size in bytes.
const DefaultSnippetChars = 160

// wordSnap is how far a window edge may move to land on a word boundary.
const wordSnap = 24

// Snippet returns a window of at most maxChars bytes of text around the
// earliest match location, or the start of text when there is none.
// Whitespace is collapsed and cut edges are marked with an ellipsis.
func Snippet(text string, locations []store.Span, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}
	if len(text) <= maxChars {
		return collapseSpace(text)
	}

	anchor, anchorEnd := 0, 0
	for _, loc := range locations {
		if loc.Start < 0 || loc.End > len(text) || loc.Start >= loc.End {
			continue
		}
		if anchorEnd == 0 || loc.Start < anchor {
			anchor, anchorEnd = loc.Start, loc.End
		}
	}

	start := max(0, anchor-maxChars/4)
	end := start + maxChars
	if end > len(text) {
		end = len(text)
		start = max(0, end-maxChars)
	}
	start = runeCeil(text, start)
	end = runeFloor(text, end)

	// Prefer cutting at spaces, without losing the match.
	if start > 0 {
		if i := strings.IndexFunc(text[start:end], unicode.IsSpace); i >= 0 && i < wordSnap && start+i < anchor {
			start += i + 1
		}
	}
	if end < len(text) {
		if i := strings.LastIndexFunc(text[start:end], unicode.IsSpace); i > 0 && end-(start+i) < wordSnap && start+i >= anchorEnd {
			end = start + i
		}
	}

	var sb strings.Builder
	if start > 0 {
		sb.WriteString("…")
	}
	sb.WriteString(collapseSpace(text[start:end]))
	if end < len(text) {
		sb.WriteString("…")
	}
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// Recency scores document age: 1.0 for a document modified now, decaying
// with a one-year time constant, floored at 0.01.
func Recency(modifiedAt, now time.Time) float64 {
	if modifiedAt.IsZero() {
		return 0.01
	}
	ageDays := now.Sub(modifiedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Min(1, math.Max(0.01, math.Exp(-ageDays/365)))
}
