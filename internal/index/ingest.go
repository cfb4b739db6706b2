package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	"github.com/dillonfkhanna/multi-search/internal/content"
	"github.com/dillonfkhanna/multi-search/internal/embed"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/extract"
)

// pass is the state shared by the workers of one ingestion pass.
type pass struct {
	id     string
	result *IngestResult

	// degraded flips once the embedding model is found unavailable; later
	// documents skip embedding.
	degraded atomic.Bool
}

// prepared is a document after the worker-side steps, waiting to be committed.
type prepared struct {
	check   content.Check
	outcome DocumentOutcome
	doc     content.Document
	chunks  []chunk.Chunk
	vectors [][]float32
	err     error
}

// Ingest brings the index up to date with sources. Documents are hashed,
// extracted and chunked concurrently, embedded a window at a time in shared
// model batches, and committed one at a time in submission order. A per-document failure is recorded in the result and
// does not stop the pass. If ctx ends, documents already committed stay
// and the rest are discarded; the partial result is returned with ctx.Err().
func (m *Manager) Ingest(ctx context.Context, sources []Source) (*IngestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, mserrors.ErrIndexClosed
	}

	release, err := m.acquirePass(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return m.runPass(ctx, sources)
}

// Sync ingests sources and deletes every manifest document absent from
// them. When scope is given, only documents under those directories are
// candidates for deletion.
func (m *Manager) Sync(ctx context.Context, sources []Source, scope ...string) (*IngestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, mserrors.ErrIndexClosed
	}

	release, err := m.acquirePass(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	present := make(map[string]bool, len(sources))
	for _, src := range sources {
		present[content.DocumentID(src.Path)] = true
	}

	docs, err := m.manifest.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list manifest documents: %w", err)
	}
	all := append([]Source(nil), sources...)
	for _, doc := range docs {
		if !present[doc.ID] && inScope(doc.Path, scope) {
			all = append(all, Source{Path: doc.Path, Deleted: true})
		}
	}
	return m.runPass(ctx, all)
}

func inScope(path string, scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, dir := range scope {
		rel, err := filepath.Rel(dir, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// acquirePass takes the single pass slot, waiting for a running pass to
// finish or ctx to end.
func (m *Manager) acquirePass(ctx context.Context) (func(), error) {
	select {
	case m.passSem <- struct{}{}:
		return func() { <-m.passSem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) runPass(ctx context.Context, sources []Source) (*IngestResult, error) {
	start := time.Now()
	p := &pass{
		id:     uuid.NewString(),
		result: &IngestResult{Outcomes: make([]DocumentOutcome, 0, len(sources))},
	}
	p.result.PassID = p.id

	slog.Info("ingest_started",
		slog.String("pass_id", p.id),
		slog.Int("sources", len(sources)),
		slog.Bool("semantic", m.generator != nil))

	// Documents are prepared a window at a time. While one window is
	// embedded and committed, the workers prepare the next.
	window := max(2*m.workers, 1)
	var queue []chan *prepared
	next := 0
	var cancelled error
	fill := func() {
		for cancelled == nil && next < len(sources) && len(queue) < window {
			queue = append(queue, m.submit(ctx, p, sources[next]))
			next++
		}
	}

	fill()
	for len(queue) > 0 {
		group := make([]*prepared, len(queue))
		for i, future := range queue {
			group[i] = <-future
		}
		queue = nil
		if cancelled == nil {
			cancelled = ctx.Err()
		}
		fill()

		if cancelled == nil {
			m.embedWindow(ctx, p, group)
		}
		for _, prep := range group {
			if cancelled == nil {
				cancelled = ctx.Err()
			}
			if cancelled != nil {
				break
			}
			m.commit(context.WithoutCancel(ctx), p, prep)
		}
	}

	res := p.result
	res.Degraded = p.degraded.Load()
	res.Duration = time.Since(start)

	slog.Info("ingest_complete",
		slog.String("pass_id", p.id),
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int("deleted", res.Deleted),
		slog.Int("failed", len(res.Failed)),
		slog.Int("keyword_only", res.KeywordOnly),
		slog.Int("embeddings_computed", res.Embeddings.Computed),
		slog.Bool("degraded", res.Degraded),
		slog.Bool("cancelled", cancelled != nil),
		slog.Duration("duration", res.Duration))

	if cancelled != nil {
		return res, cancelled
	}
	return res, nil
}

// submit schedules preparation of src on the worker pool and returns its future.
func (m *Manager) submit(ctx context.Context, p *pass, src Source) chan *prepared {
	future := make(chan *prepared, 1)
	err := m.pool.Submit(func() {
		future <- m.prepare(ctx, p, src)
	})
	if err != nil {
		future <- &prepared{
			outcome: DocumentOutcome{Path: src.Path, DocumentID: content.DocumentID(src.Path), State: StateFailed},
			err:     fmt.Errorf("schedule document: %w", err),
		}
	}
	return future
}

// prepare runs the per-document steps that need no lock: hash check,
// extraction and chunking.
func (m *Manager) prepare(ctx context.Context, p *pass, src Source) *prepared {
	prep := &prepared{outcome: DocumentOutcome{Path: src.Path, State: StatePending}}
	if err := ctx.Err(); err != nil {
		prep.err = err
		return prep
	}

	check, err := m.store.CheckDocument(ctx, src)
	prep.check = check
	prep.outcome.DocumentID = check.DocumentID
	prep.outcome.Status = check.Status
	prep.outcome.Decision = check.Decision
	if err != nil {
		prep.err = err
		return prep
	}
	prep.outcome.State = StateHashed

	switch check.Decision {
	case content.Skip:
		prep.outcome.State = StateSkipped
		return prep
	case content.Delete:
		return prep
	}

	extracted, err := extract.Extract(src.Path, check.Content)
	if err != nil {
		prep.err = mserrors.IOError(src.Path, err)
		return prep
	}

	prep.chunks = m.chunker.Chunk(check.DocumentID, extracted.Text)
	prep.doc = content.Document{
		ID:          check.DocumentID,
		Path:        src.Path,
		Title:       extracted.Title,
		Format:      string(extracted.Format),
		ContentHash: check.ContentHash,
		ModifiedAt:  src.ModifiedAt,
	}
	prep.outcome.Chunks = len(prep.chunks)
	prep.outcome.State = StateChunked

	if m.generator != nil && len(prep.chunks) == 0 {
		// Nothing to embed; the document is current for this model.
		prep.doc.ModelVersion = m.generator.ModelVersion()
	}
	return prep
}

// embedWindow embeds the chunks of every reindexed document in group with
// one generator call, so small documents share model batches. A model
// failure degrades the pass and leaves the window keyword-only.
func (m *Manager) embedWindow(ctx context.Context, p *pass, group []*prepared) {
	if m.generator == nil || p.degraded.Load() {
		return
	}

	var (
		pending []*prepared
		chunks  []chunk.Chunk
	)
	for _, prep := range group {
		if prep.err != nil || prep.check.Decision != content.Reindex || len(prep.chunks) == 0 {
			continue
		}
		pending = append(pending, prep)
		chunks = append(chunks, prep.chunks...)
	}
	if len(chunks) == 0 {
		return
	}

	embeddings, stats, err := m.generator.Embed(ctx, chunks)
	p.result.Embeddings = addStats(p.result.Embeddings, stats)
	switch {
	case err == nil:
		offset := 0
		for _, prep := range pending {
			prep.vectors = make([][]float32, len(prep.chunks))
			for i := range prep.chunks {
				prep.vectors[i] = embeddings[offset+i].Vector
			}
			offset += len(prep.chunks)
			prep.doc.ModelVersion = m.generator.ModelVersion()
			prep.outcome.State = StateEmbeddingCommitted
		}
	case errors.Is(err, mserrors.ErrModelUnavailable):
		if p.degraded.CompareAndSwap(false, true) {
			slog.Warn("embedding_degraded",
				slog.String("pass_id", p.id),
				slog.String("model", m.generator.ModelName()),
				slog.String("error", err.Error()))
		}
	default:
		for _, prep := range pending {
			prep.err = err
		}
	}
}

// commit applies one prepared document: keyword index, then vector index,
// then the manifest. A failed step purges the document from all three so
// the next pass sees it as new.
func (m *Manager) commit(ctx context.Context, p *pass, prep *prepared) {
	res := p.result
	out := &prep.outcome
	defer func() { res.Outcomes = append(res.Outcomes, *out) }()

	if prep.err != nil {
		if prep.check.Status == content.StatusUnreachable || errors.Is(prep.err, mserrors.ErrSourceUnreadable) {
			// The source is gone or unreadable; stale results must not survive.
			if err := m.purge(ctx, prep.check.DocumentID); err != nil {
				prep.err = errors.Join(prep.err, err)
			}
		}
		m.fail(p, out, prep.err)
		return
	}

	switch prep.check.Decision {
	case content.Skip:
		res.Skipped++
	case content.Delete:
		if err := m.purge(ctx, prep.check.DocumentID); err != nil {
			m.fail(p, out, err)
			return
		}
		out.State = StateDeleted
		if prep.check.Previous != nil {
			res.Deleted++
		}
	case content.Reindex:
		if err := m.commitDocument(ctx, prep); err != nil {
			m.fail(p, out, err)
			return
		}
		res.Indexed++
		if out.KeywordOnly {
			res.KeywordOnly++
		}
		slog.Debug("document_indexed",
			slog.String("pass_id", p.id),
			slog.String("path", prep.doc.Path),
			slog.String("status", string(out.Status)),
			slog.Int("chunks", len(prep.chunks)),
			slog.Bool("keyword_only", out.KeywordOnly))
	}
}

// commitDocument writes one document under the commit lock. A failed step
// is rolled back before the lock is released.
func (m *Manager) commitDocument(ctx context.Context, prep *prepared) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	err := m.writeDocument(ctx, prep)
	if err == nil {
		return nil
	}
	if purgeErr := m.purgeLocked(ctx, prep.doc.ID); purgeErr != nil {
		err = errors.Join(err, fmt.Errorf("rollback: %w", purgeErr))
	}
	prep.outcome.State = StateRolledBack
	return err
}

func (m *Manager) writeDocument(ctx context.Context, prep *prepared) error {
	id := prep.doc.ID
	out := &prep.outcome

	if err := m.keyword.AddOrReplace(ctx, id, prep.chunks); err != nil {
		return fmt.Errorf("keyword commit: %w", err)
	}
	out.State = StateKeywordCommitted

	if prep.vectors != nil {
		if err := m.vector.Upsert(ctx, id, chunk.IDs(prep.chunks), prep.vectors); err != nil {
			return fmt.Errorf("vector commit: %w", err)
		}
		out.State = StateVectorCommitted
	} else {
		// Vectors of a previous version would no longer match the text.
		if err := m.vector.Remove(ctx, id); err != nil {
			return fmt.Errorf("vector commit: %w", err)
		}
		out.KeywordOnly = len(prep.chunks) > 0 && m.generator != nil
	}

	prep.doc.LastIndexedAt = m.now()
	if err := m.manifest.CommitDocument(ctx, prep.doc, prep.chunks); err != nil {
		return fmt.Errorf("manifest commit: %w", err)
	}
	out.State = StateManifestUpdated
	return nil
}

// purge removes every trace of a document. All three removals are attempted.
func (m *Manager) purge(ctx context.Context, documentID string) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return m.purgeLocked(ctx, documentID)
}

func (m *Manager) purgeLocked(ctx context.Context, documentID string) error {
	var errs []error
	if err := m.keyword.Remove(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("keyword: %w", err))
	}
	if err := m.vector.Remove(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("vector: %w", err))
	}
	if _, err := m.manifest.DeleteDocument(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("manifest: %w", err))
	}
	return errors.Join(errs...)
}

func (m *Manager) fail(p *pass, out *DocumentOutcome, err error) {
	if out.State != StateRolledBack {
		out.State = StateFailed
	}
	out.Err = err
	p.result.Failed = append(p.result.Failed, Failure{Path: out.Path, Err: err})
	slog.Warn("document_failed",
		slog.String("pass_id", p.id),
		slog.String("path", out.Path),
		slog.String("state", out.State.String()),
		slog.String("error", err.Error()))
}

func addStats(a, b embed.GenerateStats) embed.GenerateStats {
	a.Chunks += b.Chunks
	a.Unique += b.Unique
	a.MemoryHits += b.MemoryHits
	a.CacheHits += b.CacheHits
	a.Computed += b.Computed
	a.Batches += b.Batches
	return a
}
