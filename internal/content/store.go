package content

import (
	"context"
	"os"

	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// Store decides, per source document, whether an ingestion pass should skip,
// re-index or delete it.
type Store struct {
	manifest     *Manifest
	modelVersion string
	readFile     func(string) ([]byte, error)
}

// NewStore creates a Store over manifest. modelVersion is the identity of the
// active embedding model; pass "" when running keyword-only, which disables
// the stale-vector rule.
func NewStore(manifest *Manifest, modelVersion string) *Store {
	return &Store{
		manifest:     manifest,
		modelVersion: modelVersion,
		readFile:     os.ReadFile,
	}
}

// Manifest returns the underlying manifest.
func (s *Store) Manifest() *Manifest {
	return s.manifest
}

// ModelVersion returns the model version decisions are made against.
func (s *Store) ModelVersion() string {
	return s.modelVersion
}

// CheckDocument hashes src and compares it against the manifest. It never
// writes. A source that cannot be read yields status Unreachable and an
// IOError; the returned Check is still populated so the caller can purge
// stale state for that document.
func (s *Store) CheckDocument(ctx context.Context, src Source) (Check, error) {
	check := Check{
		DocumentID: DocumentID(src.Path),
		Path:       src.Path,
	}

	prev, err := s.manifest.Get(ctx, check.DocumentID)
	if err != nil {
		return check, err
	}
	check.Previous = prev

	if src.Deleted {
		check.Decision = Delete
		check.Status = StatusDeleted
		return check, nil
	}

	raw := src.Content
	readErr := src.Err
	if readErr == nil && raw == nil {
		raw, readErr = s.readFile(src.Path)
	}
	if readErr != nil {
		check.Decision = Delete
		check.Status = StatusUnreachable
		return check, mserrors.IOError(src.Path, readErr)
	}

	check.Content = raw
	check.ContentHash = HashContent(raw)

	switch {
	case prev == nil:
		check.Decision = Reindex
		check.Status = StatusNew
	case prev.ContentHash != check.ContentHash:
		check.Decision = Reindex
		check.Status = StatusChanged
	case s.modelVersion != "" && prev.ModelVersion != s.modelVersion:
		// Same bytes, stale or missing vectors.
		check.Decision = Reindex
		check.Status = StatusUnchanged
	default:
		check.Decision = Skip
		check.Status = StatusUnchanged
	}
	return check, nil
}
