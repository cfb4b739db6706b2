package chunk

import (
	"strings"
	"unicode/utf8"
)

// Chunker splits text into windows of at most maxChars bytes that overlap by
// roughly overlap bytes. Output depends only on (text, maxChars, overlap).
type Chunker struct {
	maxChars int
	overlap  int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxChunkChars sets the window size in bytes of UTF-8 text.
func WithMaxChunkChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// WithOverlapChars sets how far each window reaches back into the previous one.
func WithOverlapChars(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChars: DefaultMaxChunkChars,
		overlap:  DefaultOverlapChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.maxChars {
		c.overlap = c.maxChars / 4
	}
	return c
}

// MaxChunkChars returns the configured window size.
func (c *Chunker) MaxChunkChars() int { return c.maxChars }

// OverlapChars returns the configured overlap.
func (c *Chunker) OverlapChars() int { return c.overlap }

// Chunk splits text for documentID. Text shorter than the window yields one
// chunk spanning all of it; blank text yields none.
func (c *Chunker) Chunk(documentID, text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	n := len(text)
	var chunks []Chunk
	start := 0

	for start < n {
		end := start + c.maxChars
		if end >= n {
			end = n
		} else {
			end = runeFloor(text, end)
			if cut := breakPoint(text, start, end); cut > start {
				end = cut
			}
			if end <= start {
				// A single rune wider than the window.
				_, size := utf8.DecodeRuneInString(text[start:])
				end = start + size
			}
		}

		body := text[start:end]
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, Chunk{
				ID:          ID(documentID, start),
				DocumentID:  documentID,
				Ordinal:     len(chunks),
				Text:        body,
				StartOffset: start,
				EndOffset:   end,
				ContentHash: HashText(body),
			})
		}

		if end >= n {
			break
		}
		start = c.nextStart(text, start, end)
	}

	return chunks
}

// nextStart backs up by the overlap, then moves forward to a rune boundary
// and the start of a word. The result is always in (start, end].
func (c *Chunker) nextStart(text string, start, end int) int {
	next := end - c.overlap
	if next <= start {
		return end
	}
	next = runeCeil(text, next)
	for next < end && !isSpace(text[next-1]) {
		next++
	}
	if next >= end {
		return end
	}
	return runeCeil(text, next)
}

// breakPoint finds the best cut in the second half of text[start:end]:
// just after the last sentence terminator, else after the last whitespace.
// Returns 0 when neither exists.
func breakPoint(text string, start, end int) int {
	mid := start + (end-start)/2
	for i := end - 1; i >= mid; i-- {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && isSpace(text[i+1]) {
				return i + 1
			}
		case '\n':
			return i + 1
		}
	}
	for i := end - 1; i >= mid; i-- {
		if isSpace(text[i]) {
			return i + 1
		}
	}
	return 0
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

// runeFloor moves i back to the start of the rune containing it.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the next rune start.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
