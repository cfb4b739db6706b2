package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Chunk size defaults. Chunk ids derive from offsets, so these are part of
// the on-disk format: the manifest records them and a change forces a rebuild.
const (
	DefaultMaxChunkChars = 1000
	DefaultOverlapChars  = 200
)

// Chunk is a retrievable unit of document text.
type Chunk struct {
	ID          string // <document_id>:<start_offset>
	DocumentID  string
	Ordinal     int    // position within the document, 0-based
	Text        string
	StartOffset int    // byte offset into the extracted text, inclusive
	EndOffset   int    // byte offset, exclusive
	ContentHash string // SHA-256 of Text, lowercase hex
}

// ID returns the chunk id for a document and start offset.
func ID(documentID string, startOffset int) string {
	return documentID + ":" + strconv.Itoa(startOffset)
}

// DocumentIDOf returns the document id a chunk id belongs to.
func DocumentIDOf(chunkID string) string {
	if i := strings.LastIndexByte(chunkID, ':'); i >= 0 {
		return chunkID[:i]
	}
	return chunkID
}

// HashText returns the lowercase hex SHA-256 of s.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// IDs returns the ids of chunks in order.
func IDs(chunks []Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
