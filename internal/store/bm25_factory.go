package store

import (
	"fmt"
	"path/filepath"
)

// KeywordBackend selects the keyword index implementation.
type KeywordBackend string

const (
	// BackendBleve uses bleve v2 with BM25 scoring (default).
	BackendBleve KeywordBackend = "bleve"

	// BackendSQLite uses SQLite FTS5 with bm25() ranking.
	BackendSQLite KeywordBackend = "sqlite"
)

// KeywordIndexPath returns where the backend keeps its files under root.
func KeywordIndexPath(root string, backend KeywordBackend) string {
	switch backend {
	case BackendSQLite:
		return filepath.Join(root, "keyword.db")
	default:
		return filepath.Join(root, "keyword.bleve")
	}
}

// NewKeywordIndex opens the keyword index for backend under root. An empty
// root creates an in-memory index.
func NewKeywordIndex(root string, backend KeywordBackend, config BM25Config) (KeywordIndex, error) {
	var path string
	if root != "" {
		path = KeywordIndexPath(root, backend)
	}

	switch backend {
	case BackendBleve, "":
		return NewBleveIndex(path, config)
	case BackendSQLite:
		return NewSQLiteIndex(path, config)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: bleve, sqlite)", backend)
	}
}
