package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// HNSWIndex implements VectorIndex on coder/hnsw. Up to
// ExactScanThreshold live vectors Search scans every vector and returns the
// true top k (recall 1.0). Past the threshold it walks the graph and
// re-ranks the candidates exactly; that mode is approximate and its recall
// is not bounded, which is why the default threshold covers any index that
// fits in memory.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig
	path   string

	// ID mapping (chunk id <-> graph key)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// chunk ids per document
	docs map[string]map[string]struct{}

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorIndexConfig
}

// OpenHNSWIndex loads the index persisted at path, or creates an empty one.
// An empty path keeps the index in memory only. A persisted index whose
// dimensions differ from a non-zero cfg.Dimensions returns
// ErrDimensionMismatch; unreadable files return IndexCorruption.
func OpenHNSWIndex(path string, cfg VectorIndexConfig) (*HNSWIndex, error) {
	s := newHNSWIndex(path, cfg)
	if path == "" {
		return s, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, metaErr := os.Stat(path + ".meta"); os.IsNotExist(metaErr) {
			return s, nil
		}
		return nil, mserrors.IndexCorruption("vector", path, fmt.Errorf("graph file missing but metadata present"))
	}

	wantDims := cfg.Dimensions
	if err := s.load(); err != nil {
		return nil, mserrors.IndexCorruption("vector", path, err)
	}
	if wantDims != 0 && s.config.Dimensions != 0 && s.config.Dimensions != wantDims {
		return nil, ErrDimensionMismatch{Expected: wantDims, Got: s.config.Dimensions}
	}
	// Tuning comes from the caller, dimensions from disk.
	dims := s.config.Dimensions
	s.config = withVectorDefaults(cfg)
	if dims != 0 {
		s.config.Dimensions = dims
	}
	s.graph.EfSearch = s.config.EfSearch
	return s, nil
}

func withVectorDefaults(cfg VectorIndexConfig) VectorIndexConfig {
	def := DefaultVectorIndexConfig(cfg.Dimensions)
	if cfg.M == 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = def.EfSearch
	}
	if cfg.ExactScanThreshold == 0 {
		cfg.ExactScanThreshold = def.ExactScanThreshold
	}
	return cfg
}

func newHNSWIndex(path string, cfg VectorIndexConfig) *HNSWIndex {
	cfg = withVectorDefaults(cfg)
	return &HNSWIndex{
		graph:  newGraph(cfg),
		config: cfg,
		path:   path,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		docs:   make(map[string]map[string]struct{}),
	}
}

func newGraph(cfg VectorIndexConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Upsert replaces every vector of documentID. Old graph nodes are
// orphaned rather than deleted; coder/hnsw misbehaves when the last node
// of a layer is removed.
func (s *HNSWIndex) Upsert(ctx context.Context, documentID string, chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(chunkIDs), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.ErrIndexClosed
	}

	dims := s.config.Dimensions
	for _, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims {
			return ErrDimensionMismatch{Expected: dims, Got: len(v)}
		}
	}
	s.config.Dimensions = dims

	s.removeLocked(documentID)
	if len(chunkIDs) == 0 {
		return nil
	}

	owned := make(map[string]struct{}, len(chunkIDs))
	for i, id := range chunkIDs {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		owned[id] = struct{}{}
	}
	s.docs[documentID] = owned
	return nil
}

// Remove drops every vector of documentID.
func (s *HNSWIndex) Remove(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.ErrIndexClosed
	}
	s.removeLocked(documentID)
	return nil
}

// RemoveChunks drops individual chunk ids, used to purge orphans found by
// reconciliation.
func (s *HNSWIndex) RemoveChunks(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		key, ok := s.idMap[id]
		if !ok {
			continue
		}
		delete(s.keyMap, key)
		delete(s.idMap, id)
		doc := chunk.DocumentIDOf(id)
		if owned, ok := s.docs[doc]; ok {
			delete(owned, id)
			if len(owned) == 0 {
				delete(s.docs, doc)
			}
		}
	}
}

func (s *HNSWIndex) removeLocked(documentID string) {
	for id := range s.docs[documentID] {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	delete(s.docs, documentID)
}

// Search returns the k most similar chunks by cosine similarity. Ties are
// ordered by chunk id.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, mserrors.ErrIndexClosed
	}
	if k <= 0 || len(s.idMap) == 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	var results []*VectorResult
	if len(s.idMap) <= s.config.ExactScanThreshold {
		results = s.exactScan(ctx, q)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	} else {
		results = s.graphSearch(q, k)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *HNSWIndex) exactScan(ctx context.Context, q []float32) []*VectorResult {
	results := make([]*VectorResult, 0, len(s.idMap))
	for id, key := range s.idMap {
		if ctx.Err() != nil {
			break
		}
		vec, ok := s.graph.Lookup(key)
		if !ok {
			continue
		}
		results = append(results, &VectorResult{
			ChunkID:    id,
			Similarity: 1 - hnsw.CosineDistance(q, vec),
		})
	}
	return results
}

// graphCandidates is the number of graph hits re-ranked for a k-result
// query. Orphaned nodes still occupy result slots, so their count is added.
func graphCandidates(k, orphans, efSearch int) int {
	return max(k+orphans, efSearch, 4*k)
}

func (s *HNSWIndex) graphSearch(q []float32, k int) []*VectorResult {
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(q, graphCandidates(k, orphans, s.config.EfSearch))

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		results = append(results, &VectorResult{
			ChunkID:    id,
			Similarity: 1 - hnsw.CosineDistance(q, node.Value),
		})
	}
	return results
}

// AllChunkIDs returns every live chunk id.
func (s *HNSWIndex) AllChunkIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains checks if a chunk id has a live vector.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.idMap[id]
	return exists
}

// HasDocument reports whether documentID has any live vector.
func (s *HNSWIndex) HasDocument(documentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[documentID]) > 0
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Dimensions returns the vector length, 0 if not yet known.
func (s *HNSWIndex) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// HNSWStats contains graph statistics including orphan count.
type HNSWStats struct {
	ValidIDs   int // live vectors
	GraphNodes int // nodes in the graph, orphans included
	Orphans    int
}

// Stats returns graph statistics.
func (s *HNSWIndex) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}
	graphNodes := s.graph.Len()
	return HNSWStats{
		ValidIDs:   len(s.idMap),
		GraphNodes: graphNodes,
		Orphans:    graphNodes - len(s.idMap),
	}
}

// compactLocked rebuilds the graph from live vectors once orphans
// outnumber them.
func (s *HNSWIndex) compactLocked() {
	orphans := s.graph.Len() - len(s.idMap)
	if orphans == 0 || orphans < len(s.idMap) {
		return
	}

	graph := newGraph(s.config)
	keys := make([]uint64, 0, len(s.keyMap))
	for key := range s.keyMap {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		if vec, ok := s.graph.Lookup(key); ok {
			graph.Add(hnsw.MakeNode(key, vec))
		}
	}
	slog.Debug("hnsw_compacted",
		slog.Int("orphans_dropped", orphans),
		slog.Int("live", len(keys)))
	s.graph = graph
}

// Save persists the graph and id maps with temp file + rename.
func (s *HNSWIndex) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.ErrIndexClosed
	}
	if s.path == "" {
		return nil
	}

	s.compactLocked()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := s.path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, s.path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(s.path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (s *HNSWIndex) load() error {
	if err := s.loadMetadata(s.path + ".meta"); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	s.graph = newGraph(s.config)
	// coder/hnsw Import requires io.ByteReader
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	for id, key := range s.idMap {
		if _, ok := s.graph.Lookup(key); !ok {
			return fmt.Errorf("chunk %s has no node in graph", id)
		}
	}
	return nil
}

func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	s.docs = make(map[string]map[string]struct{})
	s.nextKey = meta.NextKey
	s.config = withVectorDefaults(meta.Config)

	for id, key := range s.idMap {
		s.keyMap[key] = id
		doc := chunk.DocumentIDOf(id)
		if s.docs[doc] == nil {
			s.docs[doc] = make(map[string]struct{})
		}
		s.docs[doc][id] = struct{}{}
	}
	return nil
}

// Close releases the graph. It does not save.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

// RemoveVectorFiles deletes a persisted vector index.
func RemoveVectorFiles(path string) error {
	for _, p := range []string{path, path + ".meta", path + ".tmp", path + ".meta.tmp"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
