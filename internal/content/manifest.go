package content

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// SchemaVersion is bumped whenever schema.sql changes incompatibly.
const SchemaVersion = 1

// State keys persisted in the manifest.
const (
	StateSchemaVersion = "schema_version"
	StateModelVersion  = "model_version"
	StateDimensions    = "dimensions"
	StateMaxChunkChars = "max_chunk_chars"
	StateOverlapChars  = "overlap_chars"
)

//go:embed schema.sql
var schemaSQL string

// Manifest is the SQLite-backed mapping document id -> content hash -> chunks.
// Every mutating method runs in a single transaction.
type Manifest struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// StoredChunk is a chunk row joined with its owning document.
type StoredChunk struct {
	Chunk    chunk.Chunk
	Document Document
}

// Stats summarises manifest contents.
type Stats struct {
	Documents   int
	Chunks      int
	KeywordOnly int
	// LastIndexed is the newest commit time of any document, zero when empty.
	LastIndexed time.Time
}

// OpenManifest opens or creates the manifest at path. An empty path opens an
// in-memory manifest. An existing file that fails its integrity check, or
// carries a different schema version, is reported as IndexCorruption.
func OpenManifest(path string) (*Manifest, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	m := &Manifest{db: db, path: path}
	if err := m.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manifest) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := m.db.Exec(pragma); err != nil {
			return m.corrupt(fmt.Errorf("%s: %w", pragma, err))
		}
	}

	var result string
	if err := m.db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return m.corrupt(err)
	}
	if result != "ok" {
		return m.corrupt(errors.New(result))
	}

	if _, err := m.db.Exec(schemaSQL); err != nil {
		return m.corrupt(fmt.Errorf("apply schema: %w", err))
	}

	version, err := m.GetState(context.Background(), StateSchemaVersion)
	if err != nil {
		return m.corrupt(err)
	}
	switch version {
	case "":
		return m.SetState(context.Background(), StateSchemaVersion, strconv.Itoa(SchemaVersion))
	case strconv.Itoa(SchemaVersion):
		return nil
	default:
		return m.corrupt(fmt.Errorf("schema version %s, want %d", version, SchemaVersion))
	}
}

func (m *Manifest) corrupt(cause error) error {
	return mserrors.IndexCorruption("manifest", m.path, cause)
}

// Path returns the database file path, empty for in-memory manifests.
func (m *Manifest) Path() string {
	return m.path
}

// Close closes the database.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func (m *Manifest) checkOpen() error {
	if m.closed {
		return mserrors.ErrIndexClosed
	}
	return nil
}

const documentColumns = `id, path, title, format, content_hash, modified_at, last_indexed_at, model_version, chunk_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d                 Document
		modified, indexed int64
	)
	if err := row.Scan(&d.ID, &d.Path, &d.Title, &d.Format, &d.ContentHash,
		&modified, &indexed, &d.ModelVersion, &d.ChunkCount); err != nil {
		return nil, err
	}
	if modified != 0 {
		d.ModifiedAt = time.Unix(0, modified)
	}
	d.LastIndexedAt = time.Unix(0, indexed)
	return &d, nil
}

// Get returns the document with id, or nil if it is not in the manifest.
func (m *Manifest) Get(ctx context.Context, id string) (*Document, error) {
	return m.getOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
}

// GetByPath returns the document stored for path, or nil.
func (m *Manifest) GetByPath(ctx context.Context, path string) (*Document, error) {
	return m.getOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
}

func (m *Manifest) getOne(ctx context.Context, query string, arg string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	d, err := scanDocument(m.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return d, nil
}

// Documents returns every manifest entry ordered by path.
func (m *Manifest) Documents(ctx context.Context) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ChunkIDs returns the current chunk ids of a document in ordinal order.
func (m *Manifest) ChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ChunkOwners maps every chunk id in the manifest to its document id.
func (m *Manifest) ChunkOwners(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT id, document_id FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	owners := make(map[string]string)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		owners[id] = doc
	}
	return owners, rows.Err()
}

// Chunks resolves chunk ids to their stored text and owning document.
// Ids not in the manifest are absent from the result.
func (m *Manifest) Chunks(ctx context.Context, ids []string) (map[string]*StoredChunk, error) {
	out := make(map[string]*StoredChunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	// Batch to stay well below SQLITE_MAX_VARIABLE_NUMBER.
	const batchSize = 500
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		batch := ids[start:end]

		query := `SELECT c.id, c.ordinal, c.start_offset, c.end_offset, c.content_hash, c.text, ` +
			prefixColumns("d.", documentColumns) +
			` FROM chunks c JOIN documents d ON d.id = c.document_id WHERE c.id IN (` +
			placeholders(len(batch)) + `)`

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		if err := m.scanChunks(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *Manifest) scanChunks(ctx context.Context, query string, args []any, out map[string]*StoredChunk) error {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to resolve chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sc                StoredChunk
			modified, indexed int64
		)
		d := &sc.Document
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.Ordinal, &sc.Chunk.StartOffset, &sc.Chunk.EndOffset,
			&sc.Chunk.ContentHash, &sc.Chunk.Text,
			&d.ID, &d.Path, &d.Title, &d.Format, &d.ContentHash, &modified, &indexed,
			&d.ModelVersion, &d.ChunkCount); err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		if modified != 0 {
			d.ModifiedAt = time.Unix(0, modified)
		}
		d.LastIndexedAt = time.Unix(0, indexed)
		sc.Chunk.DocumentID = d.ID
		out[sc.Chunk.ID] = &sc
	}
	return rows.Err()
}

// CommitDocument replaces the manifest entry and chunk set for doc in one
// transaction. This is the final step of a document's ingestion.
func (m *Manifest) CommitDocument(ctx context.Context, doc Document, chunks []chunk.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A different document may have previously owned this path under an
	// older id scheme; path is UNIQUE so clear it first.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ? AND id != ?`, doc.Path, doc.ID); err != nil {
		return fmt.Errorf("failed to clear path: %w", err)
	}

	var modified int64
	if !doc.ModifiedAt.IsZero() {
		modified = doc.ModifiedAt.UnixNano()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			format = excluded.format,
			content_hash = excluded.content_hash,
			modified_at = excluded.modified_at,
			last_indexed_at = excluded.last_indexed_at,
			model_version = excluded.model_version,
			chunk_count = excluded.chunk_count`,
		doc.ID, doc.Path, doc.Title, doc.Format, doc.ContentHash, modified,
		doc.LastIndexedAt.UnixNano(), doc.ModelVersion, len(chunks))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, start_offset, end_offset, content_hash, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, doc.ID, c.Ordinal, c.StartOffset, c.EndOffset, c.ContentHash, c.Text); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its chunks. It reports whether an
// entry existed.
func (m *Manifest) DeleteDocument(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return false, err
	}

	res, err := m.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearModelVersion marks documents as keyword-only so the next pass
// re-embeds them.
func (m *Manifest) ClearModelVersion(ctx context.Context, ids ...string) error {
	return m.updateColumn(ctx, "model_version", ids)
}

// ClearContentHash forces the next pass to re-index the documents.
func (m *Manifest) ClearContentHash(ctx context.Context, ids ...string) error {
	return m.updateColumn(ctx, "content_hash", ids)
}

// ClearAllContentHashes invalidates every document, used when the chunking
// settings change.
func (m *Manifest) ClearAllContentHashes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx, `UPDATE documents SET content_hash = ''`)
	return err
}

func (m *Manifest) updateColumn(ctx context.Context, column string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE documents SET `+column+` = '' WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", column, id, err)
		}
	}
	return tx.Commit()
}

// HasContentHash reports whether any current chunk carries hash.
func (m *Manifest) HasContentHash(ctx context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return false, err
	}

	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE content_hash = ?`, hash).Scan(&n)
	return n > 0, err
}

// Stats returns document and chunk counts.
func (m *Manifest) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return Stats{}, err
	}

	var (
		s    Stats
		last int64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM documents WHERE model_version = ''),
			(SELECT COALESCE(MAX(last_indexed_at), 0) FROM documents)`).
		Scan(&s.Documents, &s.Chunks, &s.KeywordOnly, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	if last > 0 {
		s.LastIndexed = time.Unix(0, last)
	}
	return s, nil
}

// GetState returns the value for key, or "" if unset.
func (m *Manifest) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetState stores a runtime key.
func (m *Manifest) SetState(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
