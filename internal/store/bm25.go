package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

const (
	// ProseAnalyzerName is the analyzer applied to chunk text.
	ProseAnalyzerName = "prose_en"

	fieldContent = "content"
	fieldDocID   = "doc_id"
)

// BleveIndex implements KeywordIndex on bleve v2 with BM25 scoring.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config BM25Config
	closed bool
}

var _ KeywordIndex = (*BleveIndex)(nil)

// bleveChunk is the document structure for Bleve indexing.
type bleveChunk struct {
	Content string `json:"content"`
	DocID   string `json:"doc_id"`
}

// validateIndexIntegrity checks a bleve index directory before opening.
// A missing directory is fine; a directory without a readable
// index_meta.json is not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return errors.New("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return errors.New("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// NewBleveIndex opens or creates a bleve keyword index. An empty path creates
// an in-memory index. A damaged index on disk is reported as IndexCorruption
// and left in place for the caller to rebuild.
func NewBleveIndex(path string, config BM25Config) (*BleveIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if validErr := validateIndexIntegrity(path); validErr != nil {
			return nil, mserrors.IndexCorruption("keyword", path, validErr)
		}

		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil {
			return nil, mserrors.IndexCorruption("keyword", path, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createIndexMapping builds a static mapping: analysed, term-vectored
// content plus an exact-match doc_id used to find a document's chunks.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(ProseAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			en.PossessiveName,
			lowercase.Name,
			en.StopName,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = ProseAnalyzerName
	content.Store = false
	content.IncludeTermVectors = true
	content.IncludeInAll = false

	docID := bleve.NewKeywordFieldMapping()
	docID.Store = false
	docID.IncludeInAll = false

	chunkMapping := bleve.NewDocumentStaticMapping()
	chunkMapping.AddFieldMappingsAt(fieldContent, content)
	chunkMapping.AddFieldMappingsAt(fieldDocID, docID)

	indexMapping.DefaultMapping = chunkMapping
	indexMapping.DefaultAnalyzer = ProseAnalyzerName
	indexMapping.ScoringModel = "bm25"

	return indexMapping, nil
}

// AddOrReplace deletes the document's previous chunks and indexes the new
// ones in a single batch.
func (b *BleveIndex) AddOrReplace(ctx context.Context, documentID string, chunks []chunk.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return mserrors.ErrIndexClosed
	}

	existing, err := b.chunkIDsOf(ctx, documentID)
	if err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, id := range existing {
		batch.Delete(id)
	}
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveChunk{Content: c.Text, DocID: documentID}); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}

	if batch.Size() == 0 {
		return nil
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Remove deletes every chunk of documentID.
func (b *BleveIndex) Remove(ctx context.Context, documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return mserrors.ErrIndexClosed
	}

	existing, err := b.chunkIDsOf(ctx, documentID)
	if err != nil || len(existing) == 0 {
		return err
	}

	batch := b.index.NewBatch()
	for _, id := range existing {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// chunkIDsOf must be called with b.mu held.
func (b *BleveIndex) chunkIDsOf(ctx context.Context, documentID string) ([]string, error) {
	q := bleve.NewTermQuery(documentID)
	q.SetField(fieldDocID)
	return b.collectIDs(ctx, q)
}

func (b *BleveIndex) collectIDs(ctx context.Context, q query.Query) ([]string, error) {
	docCount, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if docCount == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(q)
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search runs an OR match of the analysed query terms against chunk text.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, mserrors.ErrIndexClosed
	}
	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField(fieldContent)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.IncludeLocations = true
	req.SortBy([]string{"-_score", "_id"})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		terms, spans := extractMatches(hit)
		results = append(results, &KeywordResult{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: terms,
			Locations:    spans,
		})
	}
	return results, nil
}

// AllChunkIDs returns all chunk ids in the index.
func (b *BleveIndex) AllChunkIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, mserrors.ErrIndexClosed
	}
	return b.collectIDs(ctx, bleve.NewMatchAllQuery())
}

// Stats returns index statistics.
func (b *BleveIndex) Stats() KeywordStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := KeywordStats{Backend: string(BackendBleve)}
	if b.closed {
		return stats
	}
	docCount, _ := b.index.DocCount()
	stats.ChunkCount = int(docCount)
	return stats
}

// Close closes the index. Bleve persists on every batch, so there is
// nothing to flush.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// extractMatches returns the matched (stemmed) terms and their spans in
// the content field.
func extractMatches(hit *search.DocumentMatch) ([]string, []Span) {
	locations := hit.Locations[fieldContent]
	terms := make([]string, 0, len(locations))
	var spans []Span
	for term, locs := range locations {
		terms = append(terms, term)
		for _, loc := range locs {
			spans = append(spans, Span{Start: int(loc.Start), End: int(loc.End)})
		}
	}
	sort.Strings(terms)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return terms, spans
}
