// Package content tracks which source documents are indexed and at which
// version. It owns the manifest, the single source of truth for dedup and
// incremental update decisions.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"
)

// Status is the lifecycle state of a document as seen by an ingestion pass.
type Status string

const (
	StatusNew         Status = "new"
	StatusUnchanged   Status = "unchanged"
	StatusChanged     Status = "changed"
	StatusDeleted     Status = "deleted"
	StatusUnreachable Status = "unreachable"
)

// Decision is what an ingestion pass should do with a document.
type Decision int

const (
	Skip Decision = iota
	Reindex
	Delete
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Reindex:
		return "reindex"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Source is one document handed to ingestion by a trigger (scanner, watcher
// or an embedding caller). Content may be nil, in which case the file at
// Path is read. Err carries a read failure observed by the trigger.
type Source struct {
	Path       string
	Content    []byte
	ModifiedAt time.Time
	Deleted    bool
	Err        error
}

// Document is a manifest entry.
type Document struct {
	ID            string
	Path          string
	Title         string
	Format        string
	ContentHash   string
	ModifiedAt    time.Time
	LastIndexedAt time.Time

	// ModelVersion is empty when the document was committed keyword-only.
	ModelVersion string
	ChunkCount   int
}

// Check is the result of comparing a source against the manifest.
type Check struct {
	DocumentID  string
	Path        string
	Decision    Decision
	Status      Status
	ContentHash string

	// Content holds the bytes that were hashed so the caller does not read twice.
	Content []byte

	// Previous is the manifest entry before this pass, nil if none.
	Previous *Document
}

// DocumentID derives the stable document id from a source path.
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(sum[:16])
}

// HashContent returns the lowercase hex SHA-256 of raw.
func HashContent(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
