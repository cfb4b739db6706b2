package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	"github.com/dillonfkhanna/multi-search/internal/config"
	"github.com/dillonfkhanna/multi-search/internal/content"
	"github.com/dillonfkhanna/multi-search/internal/embed"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/search"
	"github.com/dillonfkhanna/multi-search/internal/store"
)

// Manager owns every index under one storage root. Queries may run
// concurrently with an ingestion pass; only one pass runs at a time.
type Manager struct {
	root string
	opts Options
	lock *FileLock

	manifest  *content.Manifest
	store     *content.Store
	keyword   store.KeywordIndex
	vector    store.VectorIndex
	cache     *store.EmbeddingCache
	generator *embed.Generator // nil when keyword-only
	chunker   *chunk.Chunker
	search    *search.Orchestrator

	pool    *ants.Pool
	workers int
	passSem chan struct{}
	now     func() time.Time

	mu     sync.RWMutex // held shared by operations, exclusively by Close
	closed bool

	// commitMu is held exclusively for one document's keyword, vector and
	// manifest writes and shared by queries, so a query sees a document
	// either before or after its commit.
	commitMu sync.RWMutex
}

// OpenOrCreate opens the index under root, creating it if needed. An empty
// root keeps everything in memory and takes no lock.
//
// Open takes the root's writer lock, checks each index's integrity and
// reconciles the indexes against the manifest. A corrupt index is returned
// as IndexCorruption and nothing is cleared; run Reset and a full ingest.
// A nil deps.Embedder opens the index keyword-only.
func OpenOrCreate(ctx context.Context, root string, opts Options, deps Deps) (_ *Manager, err error) {
	opts = withDefaults(opts)
	m := &Manager{
		root:    root,
		opts:    opts,
		workers: opts.Workers,
		passSem: make(chan struct{}, 1),
		now:     time.Now,
		chunker: chunk.New(
			chunk.WithMaxChunkChars(opts.Chunking.MaxChunkChars),
			chunk.WithOverlapChars(opts.Chunking.OverlapChars)),
	}

	defer func() {
		if err != nil {
			m.release()
		}
	}()

	if root != "" {
		m.lock = NewFileLock(root)
		if err := m.lock.Acquire(); err != nil {
			return nil, err
		}
	}

	if m.manifest, err = content.OpenManifest(m.path(ManifestFile)); err != nil {
		return nil, err
	}
	if m.keyword, err = store.NewKeywordIndex(root, store.KeywordBackend(opts.KeywordBackend), store.DefaultBM25Config()); err != nil {
		return nil, err
	}

	if deps.Embedder != nil {
		if m.cache, err = store.OpenEmbeddingCache(m.path(EmbeddingsDir)); err != nil {
			return nil, err
		}
		m.generator = embed.NewGeneratorFromConfig(deps.Embedder, m.cache, opts.Embeddings)
	}

	if err := m.openVectors(ctx); err != nil {
		return nil, err
	}
	if err := m.checkChunking(ctx); err != nil {
		return nil, err
	}

	checker := NewConsistencyChecker(m.manifest, m.keyword, m.vector)
	check, err := checker.Check(ctx)
	if err != nil {
		return nil, fmt.Errorf("consistency check: %w", err)
	}
	if _, err := checker.Repair(ctx, check); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	m.store = content.NewStore(m.manifest, m.ModelVersion())

	if m.pool, err = ants.NewPool(m.workers); err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	var (
		embedder search.QueryEmbedder
		vectors  search.VectorSearcher
	)
	if m.generator != nil {
		embedder = m.generator
		vectors = m.vector
	}
	m.search = search.NewOrchestrator(m.keyword, vectors, embedder, m.manifest, search.ConfigFrom(opts.Search))

	slog.Info("index_opened",
		slog.String("root", root),
		slog.String("keyword_backend", m.keyword.Stats().Backend),
		slog.String("model_version", m.ModelVersion()),
		slog.Int("vectors", m.vector.Count()),
		slog.Int("workers", m.workers))
	return m, nil
}

func withDefaults(opts Options) Options {
	def := config.NewConfig()
	if opts.Chunking.MaxChunkChars <= 0 {
		opts.Chunking.MaxChunkChars = def.Chunking.MaxChunkChars
		if opts.Chunking.OverlapChars == 0 {
			opts.Chunking.OverlapChars = def.Chunking.OverlapChars
		}
	}
	if opts.Search == (config.SearchConfig{}) {
		opts.Search = def.Search
	}
	if opts.KeywordBackend == "" {
		opts.KeywordBackend = def.Storage.KeywordBackend
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Ingest.Workers
	}
	return opts
}

func (m *Manager) path(name string) string {
	if m.root == "" {
		return ""
	}
	return filepath.Join(m.root, name)
}

// openVectors opens the vector index for the active model. Vectors built
// by a different model, or with different dimensions, are dropped; the
// documents they belonged to are re-embedded by the next pass.
func (m *Manager) openVectors(ctx context.Context) error {
	path := m.path(VectorFile)
	if m.generator == nil {
		v, err := store.OpenHNSWIndex(path, store.DefaultVectorIndexConfig(0))
		if err != nil {
			return err
		}
		m.vector = v
		return nil
	}

	active := m.generator.ModelVersion()
	previous, err := m.manifest.GetState(ctx, content.StateModelVersion)
	if err != nil {
		return err
	}

	cfg := store.DefaultVectorIndexConfig(m.generator.Dimensions())
	v, err := store.OpenHNSWIndex(path, cfg)
	var mismatch store.ErrDimensionMismatch
	switch {
	case errors.As(err, &mismatch):
		slog.Warn("vector_index_reset",
			slog.String("reason", "dimensions"),
			slog.Int("expected", mismatch.Expected),
			slog.Int("found", mismatch.Got))
		if v, err = m.resetVectors(path, cfg); err != nil {
			return err
		}
	case err != nil:
		return err
	case previous != "" && previous != active:
		slog.Warn("vector_index_reset",
			slog.String("reason", "model_version"),
			slog.String("previous", previous),
			slog.String("active", active))
		_ = v.Close()
		if v, err = m.resetVectors(path, cfg); err != nil {
			return err
		}
	}
	m.vector = v

	if err := m.manifest.SetState(ctx, content.StateModelVersion, active); err != nil {
		return err
	}
	return m.manifest.SetState(ctx, content.StateDimensions, strconv.Itoa(m.generator.Dimensions()))
}

func (m *Manager) resetVectors(path string, cfg store.VectorIndexConfig) (*store.HNSWIndex, error) {
	if path != "" {
		if err := store.RemoveVectorFiles(path); err != nil {
			return nil, fmt.Errorf("remove vector index: %w", err)
		}
	}
	return store.OpenHNSWIndex(path, cfg)
}

// checkChunking invalidates every document when the chunk settings differ
// from the ones the manifest was built with, since chunk ids derive from
// offsets.
func (m *Manager) checkChunking(ctx context.Context) error {
	want := map[string]string{
		content.StateMaxChunkChars: strconv.Itoa(m.chunker.MaxChunkChars()),
		content.StateOverlapChars:  strconv.Itoa(m.chunker.OverlapChars()),
	}

	changed := false
	for key, value := range want {
		got, err := m.manifest.GetState(ctx, key)
		if err != nil {
			return err
		}
		if got != "" && got != value {
			changed = true
		}
	}
	if changed {
		slog.Warn("chunking_changed",
			slog.Int("max_chunk_chars", m.chunker.MaxChunkChars()),
			slog.Int("overlap_chars", m.chunker.OverlapChars()))
		if err := m.manifest.ClearAllContentHashes(ctx); err != nil {
			return err
		}
	}
	for key, value := range want {
		if err := m.manifest.SetState(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// ModelVersion returns the active embedding model version, or "" when the
// index runs keyword-only.
func (m *Manager) ModelVersion() string {
	if m.generator == nil {
		return ""
	}
	return m.generator.ModelVersion()
}

// Root returns the storage root.
func (m *Manager) Root() string {
	return m.root
}

// Query runs a search with the configured defaults.
func (m *Manager) Query(ctx context.Context, text string, limit int) (*search.Response, error) {
	return m.Search(ctx, text, search.Options{Limit: limit})
}

// Search runs a search with per-query options.
func (m *Manager) Search(ctx context.Context, text string, opts search.Options) (*search.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, mserrors.ErrIndexClosed
	}
	m.commitMu.RLock()
	defer m.commitMu.RUnlock()
	return m.search.Search(ctx, text, opts)
}

// Flush persists the vector index. The manifest, the keyword index and the
// embedding cache persist on every commit.
func (m *Manager) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return mserrors.ErrIndexClosed
	}
	return m.vector.Save()
}

// Status reports index contents.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, mserrors.ErrIndexClosed
	}

	stats, err := m.manifest.Stats(ctx)
	if err != nil {
		return nil, err
	}
	kw := m.keyword.Stats()
	var size int64
	if m.root != "" {
		size = diskUsage(m.root)
	}
	return &Status{
		Root:            m.root,
		Documents:       stats.Documents,
		Chunks:          stats.Chunks,
		KeywordOnly:     stats.KeywordOnly,
		KeywordBackend:  kw.Backend,
		KeywordChunks:   kw.ChunkCount,
		Vectors:         m.vector.Count(),
		Dimensions:      m.vector.Dimensions(),
		ModelVersion:    m.ModelVersion(),
		LastIndexed:     stats.LastIndexed,
		DiskBytes:       size,
		SemanticEnabled: m.generator != nil,
		MaxChunkChars:   m.chunker.MaxChunkChars(),
		OverlapChars:    m.chunker.OverlapChars(),
	}, nil
}

// Close waits for a running pass, flushes and releases every resource and
// the storage root lock. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.vector != nil {
		if err := m.vector.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save vectors: %w", err))
		}
	}
	if err := m.release(); err != nil {
		errs = append(errs, err)
	}
	slog.Info("index_closed", slog.String("root", m.root))
	return errors.Join(errs...)
}

// release closes whatever has been opened, in reverse order.
func (m *Manager) release() error {
	var errs []error
	if m.pool != nil {
		m.pool.Release()
	}
	if m.generator != nil {
		errs = append(errs, m.generator.Close())
	}
	if m.cache != nil {
		errs = append(errs, m.cache.Close())
	}
	if m.vector != nil {
		errs = append(errs, m.vector.Close())
	}
	if m.keyword != nil {
		errs = append(errs, m.keyword.Close())
	}
	if m.manifest != nil {
		errs = append(errs, m.manifest.Close())
	}
	if m.lock != nil {
		errs = append(errs, m.lock.Unlock())
	}
	return errors.Join(errs...)
}

// Reset deletes the manifest and both indexes under root so the next pass
// rebuilds from source documents. The embedding cache is kept: it is keyed
// by content hash and model version and stays valid. Reset fails with
// IndexLocked while another process holds root.
func Reset(root string) error {
	if root == "" {
		return mserrors.ValidationError("storage root is empty", nil)
	}
	lock := NewFileLock(root)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	targets := []string{
		store.KeywordIndexPath(root, store.BackendBleve),
		store.KeywordIndexPath(root, store.BackendSQLite),
		filepath.Join(root, ManifestFile),
	}
	for _, p := range targets {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.RemoveAll(p + suffix); err != nil {
				return fmt.Errorf("remove %s: %w", p+suffix, err)
			}
		}
	}
	if err := store.RemoveVectorFiles(filepath.Join(root, VectorFile)); err != nil {
		return fmt.Errorf("remove vector index: %w", err)
	}

	slog.Info("index_reset", slog.String("root", root))
	return nil
}

// diskUsage sums regular file sizes under root; unreadable entries count as 0.
func diskUsage(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
