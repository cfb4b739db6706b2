package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dillonfkhanna/multi-search/internal/content"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/store"
)

// candidateFactor widens each sub-search beyond the requested limit so that
// fusion and per-document collapsing have enough to choose from.
const (
	candidateFactor = 3
	minCandidates   = 30
)

// Orchestrator runs a query against both indexes and fuses the results.
// It is safe for concurrent use.
type Orchestrator struct {
	keyword  KeywordSearcher
	vector   VectorSearcher
	embedder QueryEmbedder
	chunks   ChunkResolver
	config   Config
	now      func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock overrides the clock used for recency scoring.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator. embedder and vector may be nil,
// in which case every query is keyword-only and reported as degraded.
func NewOrchestrator(keyword KeywordSearcher, vector VectorSearcher, embedder QueryEmbedder, chunks ChunkResolver, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		keyword:  keyword,
		vector:   vector,
		embedder: embedder,
		chunks:   chunks,
		config:   cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// subResult is what one retrieval mode produced.
type subResult struct {
	mode     Mode
	keyword  []*store.KeywordResult
	semantic []*store.VectorResult
	err      error
}

// Search runs the query. A failure or timeout of one mode degrades the
// response instead of failing it; an error is returned only when neither
// mode produced a ranking.
func (o *Orchestrator) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, mserrors.New(mserrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	opts = o.applyDefaults(opts)
	candidates := max(opts.Limit*candidateFactor, minCandidates)

	kw, sem, degraded, err := o.dispatch(ctx, query, candidates, opts.KeywordOnly)
	if err != nil {
		return nil, err
	}

	fused := Fuse(kw, sem, FusionParams{Method: opts.Method, Weights: *opts.Weights, K: o.config.RRFConstant})
	results, err := o.resolve(ctx, fused, opts.Limit)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Results:      results,
		Degraded:     degraded,
		KeywordHits:  len(kw),
		SemanticHits: len(sem),
		Took:         time.Since(start),
	}
	slog.Debug("query_complete",
		slog.Int("results", len(results)),
		slog.Int("keyword_hits", resp.KeywordHits),
		slog.Int("semantic_hits", resp.SemanticHits),
		slog.Bool("degraded", resp.IsDegraded()),
		slog.Duration("took", resp.Took))
	return resp, nil
}

func (o *Orchestrator) applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = o.config.DefaultLimit
	}
	if o.config.MaxLimit > 0 && opts.Limit > o.config.MaxLimit {
		opts.Limit = o.config.MaxLimit
	}
	if opts.Weights == nil {
		w := o.config.Weights
		opts.Weights = &w
	}
	if opts.Method == "" {
		opts.Method = o.config.Method
	}
	return opts
}

// dispatch runs both sub-searches concurrently under the query timeout and
// returns whatever finished in time.
func (o *Orchestrator) dispatch(ctx context.Context, query string, limit int, keywordOnly bool) (
	kw []*store.KeywordResult, sem []*store.VectorResult, degraded []Mode, err error,
) {
	timeout := o.config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	semantic := !keywordOnly && o.embedder != nil && o.vector != nil

	g, gctx := errgroup.WithContext(tctx)
	out := make(chan subResult, 2)

	g.Go(func() error {
		res, err := o.keyword.Search(gctx, query, limit)
		out <- subResult{mode: ModeKeyword, keyword: res, err: err}
		return nil
	})
	if semantic {
		g.Go(func() error {
			vec, err := o.embedder.EmbedQuery(gctx, query)
			if err != nil {
				out <- subResult{mode: ModeSemantic, err: fmt.Errorf("embed query: %w", err)}
				return nil
			}
			res, err := o.vector.Search(gctx, vec, limit)
			out <- subResult{mode: ModeSemantic, semantic: res, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(out)
	}()

	errs := map[Mode]error{ModeKeyword: context.DeadlineExceeded}
	if semantic {
		errs[ModeSemantic] = context.DeadlineExceeded
	}

collect:
	for {
		select {
		case r, ok := <-out:
			if !ok {
				break collect
			}
			errs[r.mode] = r.err
			if r.err == nil {
				kw = append(kw, r.keyword...)
				sem = append(sem, r.semantic...)
			}
		case <-tctx.Done():
			break collect
		}
	}

	if ctx.Err() != nil {
		return nil, nil, nil, ctx.Err()
	}

	if !semantic {
		degraded = append(degraded, ModeSemantic)
	}
	var failures []error
	for _, mode := range []Mode{ModeKeyword, ModeSemantic} {
		modeErr, ran := errs[mode]
		if !ran || modeErr == nil {
			continue
		}
		degraded = append(degraded, mode)
		failures = append(failures, fmt.Errorf("%s search: %w", mode, modeErr))
		slog.Warn("query_mode_failed",
			slog.String("mode", string(mode)),
			slog.String("error", modeErr.Error()))
	}

	if len(degraded) < 2 {
		return kw, sem, degraded, nil
	}

	joined := errors.Join(failures...)
	for _, f := range failures {
		if errors.Is(f, context.DeadlineExceeded) {
			return nil, nil, nil, mserrors.QueryTimeout(joined)
		}
	}
	return nil, nil, nil, mserrors.New(mserrors.ErrCodeSearchFailed, "all retrieval modes failed", joined)
}

// resolve maps fused chunks to documents, drops chunks the manifest no
// longer knows, applies recency, orders, collapses and limits.
func (o *Orchestrator) resolve(ctx context.Context, fused []*FusedResult, limit int) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	stored, err := o.chunks.Chunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}

	type ranked struct {
		fused  *FusedResult
		stored *content.StoredChunk
		score  float64
	}
	now := o.now()
	candidates := make([]ranked, 0, len(fused))
	for _, f := range fused {
		sc, ok := stored[f.ChunkID]
		if !ok {
			continue
		}
		score := f.Score
		if r := o.config.RecencyWeight; r > 0 {
			score = (1-r)*score + r*Recency(sc.Document.ModifiedAt, now)
		}
		candidates = append(candidates, ranked{fused: f, stored: sc, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.stored.Document.LastIndexedAt.Equal(b.stored.Document.LastIndexedAt) {
			return a.stored.Document.LastIndexedAt.After(b.stored.Document.LastIndexedAt)
		}
		return a.fused.ChunkID < b.fused.ChunkID
	})

	results := make([]*Result, 0, min(limit, len(candidates)))
	seen := make(map[string]bool)
	for _, c := range candidates {
		if len(results) >= limit {
			break
		}
		doc := c.stored.Document
		if o.config.CollapseDocuments {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
		}
		results = append(results, &Result{
			Document: DocumentRef{
				ID:            doc.ID,
				Path:          doc.Path,
				Title:         doc.Title,
				ModifiedAt:    doc.ModifiedAt,
				LastIndexedAt: doc.LastIndexedAt,
			},
			ChunkID:       c.fused.ChunkID,
			Snippet:       Snippet(c.stored.Chunk.Text, c.fused.Locations, o.config.SnippetChars),
			Score:         c.score,
			KeywordScore:  c.fused.KeywordScore,
			SemanticScore: c.fused.SemanticScore,
			InBoth:        c.fused.InBoth,
			MatchedTerms:  c.fused.MatchedTerms,
		})
	}
	return results, nil
}
