package search

import (
	"sort"

	"github.com/dillonfkhanna/multi-search/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is the value most RRF deployments settle on.
const DefaultRRFConstant = 60

// FusedResult is a chunk after fusion, before it is mapped to a document.
type FusedResult struct {
	ChunkID       string
	Score         float64 // fused score, 0-1
	KeywordScore  float64 // raw BM25 score
	KeywordRank   int     // 1-indexed, 0 if absent
	SemanticScore float64 // cosine similarity
	SemanticRank  int     // 1-indexed, 0 if absent
	InBoth        bool
	MatchedTerms  []string
	Locations     []store.Span
}

// FusionParams configures Fuse.
type FusionParams struct {
	Method  FusionMethod
	Weights Weights
	K       int // RRF constant
}

// Fuse combines a keyword and a semantic ranking into one list, sorted by
// fused score with chunk id as the tie-break. A chunk present in one list
// only is scored from that list alone; the missing mode contributes 0.
//
// Both methods are monotone: raising one chunk's score in either input
// while holding the others fixed never lowers that chunk's fused rank.
func Fuse(keyword []*store.KeywordResult, semantic []*store.VectorResult, p FusionParams) []*FusedResult {
	if len(keyword) == 0 && len(semantic) == 0 {
		return []*FusedResult{}
	}

	fused := make(map[string]*FusedResult, len(keyword)+len(semantic))
	getOrCreate := func(id string) *FusedResult {
		if r, ok := fused[id]; ok {
			return r
		}
		r := &FusedResult{ChunkID: id}
		fused[id] = r
		return r
	}

	for rank, r := range keyword {
		f := getOrCreate(r.ChunkID)
		f.KeywordScore = r.Score
		f.KeywordRank = rank + 1
		f.MatchedTerms = r.MatchedTerms
		f.Locations = r.Locations
	}
	for rank, r := range semantic {
		f := getOrCreate(r.ChunkID)
		f.SemanticScore = float64(r.Similarity)
		f.SemanticRank = rank + 1
		f.InBoth = f.KeywordRank > 0
	}

	switch p.Method {
	case FusionRRF:
		scoreRRF(fused, p)
	default:
		scoreMinMax(fused, keyword, semantic, p.Weights)
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

// scoreMinMax normalizes each list independently. A list whose scores are
// all equal, including a single-item list, maps to 1.0.
func scoreMinMax(fused map[string]*FusedResult, keyword []*store.KeywordResult, semantic []*store.VectorResult, w Weights) {
	kwScores := make([]float64, len(keyword))
	for i, r := range keyword {
		kwScores[i] = r.Score
	}
	for i, n := range normalizeMinMax(kwScores) {
		fused[keyword[i].ChunkID].Score += w.Keyword * n
	}

	semScores := make([]float64, len(semantic))
	for i, r := range semantic {
		semScores[i] = float64(r.Similarity)
	}
	for i, n := range normalizeMinMax(semScores) {
		fused[semantic[i].ChunkID].Score += w.Semantic * n
	}
}

func normalizeMinMax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}

	out := make([]float64, len(scores))
	span := hi - lo
	for i, s := range scores {
		if span <= 1e-12 {
			out[i] = 1.0
		} else {
			out[i] = (s - lo) / span
		}
	}
	return out
}

// scoreRRF sums weight/(k+rank) over the lists a chunk appears in, then
// scales so the best chunk scores 1.0.
func scoreRRF(fused map[string]*FusedResult, p FusionParams) {
	k := p.K
	if k <= 0 {
		k = DefaultRRFConstant
	}

	var best float64
	for _, r := range fused {
		if r.KeywordRank > 0 {
			r.Score += p.Weights.Keyword / float64(k+r.KeywordRank)
		}
		if r.SemanticRank > 0 {
			r.Score += p.Weights.Semantic / float64(k+r.SemanticRank)
		}
		best = max(best, r.Score)
	}
	if best == 0 {
		return
	}
	for _, r := range fused {
		r.Score /= best
	}
}
