package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// Markers wrapped around matches by FTS5 highlight().
const (
	hlOpen  = "\x01"
	hlClose = "\x02"
)

// SQLiteIndex implements KeywordIndex using SQLite FTS5 with the porter
// stemmer over unicode61 tokens and FTS5's built-in bm25() ranking.
type SQLiteIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    BM25Config
	closed    bool
	stopWords map[string]struct{}
}

var _ KeywordIndex = (*SQLiteIndex)(nil)

// validateSQLiteIntegrity checks an existing FTS5 database before use.
func validateSQLiteIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('fts_chunks', 'chunk_rows')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 2 {
		return errors.New("keyword tables missing")
	}
	return nil
}

// NewSQLiteIndex opens or creates an FTS5 keyword index at path. An empty
// path creates an in-memory index.
func NewSQLiteIndex(path string, config BM25Config) (*SQLiteIndex, error) {
	dsn := ":memory:"
	existed := false
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if _, err := os.Stat(path); err == nil {
			existed = true
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	fail := func(cause error) (*SQLiteIndex, error) {
		_ = db.Close()
		return nil, mserrors.IndexCorruption("keyword", path, cause)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fail(fmt.Errorf("%s: %w", pragma, err))
		}
	}

	if existed {
		if err := validateSQLiteIntegrity(db); err != nil {
			return fail(err)
		}
	}

	idx := &SQLiteIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(DefaultStopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

// initSchema creates the FTS5 table and the chunk_rows side table that maps
// chunk ids to FTS rowids and owning documents.
func (s *SQLiteIndex) initSchema() error {
	_, err := s.db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize = 'porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS chunk_rows (
		chunk_id  TEXT PRIMARY KEY,
		doc_id    TEXT NOT NULL,
		fts_rowid INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_rows_doc ON chunk_rows(doc_id);
	`)
	return err
}

// AddOrReplace deletes the document's rows and inserts the new chunks in
// one transaction.
func (s *SQLiteIndex) AddOrReplace(ctx context.Context, documentID string, chunks []chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.ErrIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDocumentRows(ctx, tx, documentID); err != nil {
		return err
	}

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO fts_chunks(chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertFTS.Close()

	insertRow, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunk_rows(chunk_id, doc_id, fts_rowid) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare row statement: %w", err)
	}
	defer insertRow.Close()

	for _, c := range chunks {
		res, err := insertFTS.ExecContext(ctx, c.ID, c.Text)
		if err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read rowid for %s: %w", c.ID, err)
		}
		if _, err := insertRow.ExecContext(ctx, c.ID, documentID, rowid); err != nil {
			return fmt.Errorf("failed to track chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func deleteDocumentRows(ctx context.Context, tx *sql.Tx, documentID string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_chunks WHERE rowid IN (SELECT fts_rowid FROM chunk_rows WHERE doc_id = ?)`,
		documentID); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_rows WHERE doc_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunk rows: %w", err)
	}
	return nil
}

// Remove deletes every chunk of documentID.
func (s *SQLiteIndex) Remove(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.ErrIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDocumentRows(ctx, tx, documentID); err != nil {
		return err
	}
	return tx.Commit()
}

// Search ORs the query's non-stop-word tokens and ranks by bm25().
func (s *SQLiteIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, mserrors.ErrIndexClosed
	}
	if limit <= 0 {
		return []*KeywordResult{}, nil
	}

	tokens := dedupe(FilterStopWords(Tokenize(queryStr), s.stopWords))
	if len(tokens) == 0 {
		return []*KeywordResult{}, nil
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}

	// FTS5 bm25() is negative, lower is better.
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(fts_chunks) AS score, highlight(fts_chunks, 1, ?, ?)
		FROM fts_chunks
		WHERE fts_chunks MATCH ?
		ORDER BY score, chunk_id
		LIMIT ?`,
		hlOpen, hlClose, strings.Join(quoted, " OR "), limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []*KeywordResult
	for rows.Next() {
		var (
			chunkID, marked string
			score           float64
		)
		if err := rows.Scan(&chunkID, &score, &marked); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		terms, spans := parseHighlight(marked)
		results = append(results, &KeywordResult{
			ChunkID:      chunkID,
			Score:        -score,
			MatchedTerms: terms,
			Locations:    spans,
		})
	}
	return results, rows.Err()
}

// parseHighlight recovers match spans (offsets into the unmarked text) and
// the lowercased matched words from highlight() output.
func parseHighlight(marked string) ([]string, []Span) {
	var (
		spans []Span
		terms = map[string]struct{}{}
		plain strings.Builder
		start = -1
	)
	for i := 0; i < len(marked); i++ {
		switch marked[i] {
		case hlOpen[0]:
			start = plain.Len()
		case hlClose[0]:
			if start >= 0 {
				spans = append(spans, Span{Start: start, End: plain.Len()})
				terms[strings.ToLower(plain.String()[start:])] = struct{}{}
				start = -1
			}
		default:
			plain.WriteByte(marked[i])
		}
	}

	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, spans
}

// AllChunkIDs returns all chunk ids in the index.
func (s *SQLiteIndex) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, mserrors.ErrIndexClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunk_rows ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns index statistics.
func (s *SQLiteIndex) Stats() KeywordStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := KeywordStats{Backend: string(BackendSQLite)}
	if s.closed {
		return stats
	}
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM chunk_rows`).Scan(&stats.ChunkCount)
	return stats
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
