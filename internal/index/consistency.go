package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dillonfkhanna/multi-search/internal/chunk"
	"github.com/dillonfkhanna/multi-search/internal/content"
	"github.com/dillonfkhanna/multi-search/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanKeyword is a keyword posting the manifest does not list.
	InconsistencyOrphanKeyword InconsistencyType = iota
	// InconsistencyOrphanVector is a vector the manifest does not list.
	InconsistencyOrphanVector
	// InconsistencyMissingKeyword is a manifest chunk without keyword postings.
	InconsistencyMissingKeyword
	// InconsistencyMissingVector is a manifest chunk of an embedded document
	// without a vector.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanKeyword:
		return "orphan_keyword"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingKeyword:
		return "missing_keyword"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type       InconsistencyType
	DocumentID string
	ChunkID    string

	// Known is set when the manifest has an entry for DocumentID.
	Known bool
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of chunk ids compared.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// IsConsistent returns true if no inconsistencies were found.
func (r *CheckResult) IsConsistent() bool {
	return len(r.Inconsistencies) == 0
}

// CountByType returns counts of each inconsistency type.
func (r *CheckResult) CountByType() map[InconsistencyType]int {
	counts := make(map[InconsistencyType]int)
	for _, issue := range r.Inconsistencies {
		counts[issue.Type]++
	}
	return counts
}

// RepairResult lists what Repair changed.
type RepairResult struct {
	// Purged are documents unknown to the manifest whose postings or
	// vectors were removed.
	Purged []string
	// Reindex are documents whose content hash was cleared.
	Reindex []string
	// Reembed are documents whose model version was cleared.
	Reembed []string
}

// ConsistencyChecker compares the keyword and vector indexes against the
// manifest, the source of truth, after a crash between commit steps.
type ConsistencyChecker struct {
	manifest *content.Manifest
	keyword  store.KeywordIndex
	vector   store.VectorIndex
}

// NewConsistencyChecker creates a new checker with the given stores.
func NewConsistencyChecker(manifest *content.Manifest, keyword store.KeywordIndex, vector store.VectorIndex) *ConsistencyChecker {
	return &ConsistencyChecker{
		manifest: manifest,
		keyword:  keyword,
		vector:   vector,
	}
}

// Check scans all stores for inconsistencies. It does not modify anything.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	owners, err := c.manifest.ChunkOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list manifest chunks: %w", err)
	}
	docs, err := c.manifest.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list manifest documents: %w", err)
	}
	known := make(map[string]*content.Document, len(docs))
	for _, d := range docs {
		known[d.ID] = d
	}

	keywordIDs, err := c.keyword.AllChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keyword chunks: %w", err)
	}
	vectorIDs := c.vector.AllChunkIDs()

	var issues []Inconsistency
	orphan := func(typ InconsistencyType, id string) {
		docID := chunk.DocumentIDOf(id)
		_, ok := known[docID]
		issues = append(issues, Inconsistency{Type: typ, DocumentID: docID, ChunkID: id, Known: ok})
	}

	keywordSet := make(map[string]bool, len(keywordIDs))
	for _, id := range keywordIDs {
		keywordSet[id] = true
		if _, ok := owners[id]; !ok {
			orphan(InconsistencyOrphanKeyword, id)
		}
	}
	for _, id := range vectorIDs {
		if _, ok := owners[id]; !ok {
			orphan(InconsistencyOrphanVector, id)
		}
	}

	for id, docID := range owners {
		if !keywordSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingKeyword, DocumentID: docID, ChunkID: id, Known: true})
		}
		if d := known[docID]; d != nil && d.ModelVersion != "" && !c.vector.Contains(id) {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, DocumentID: docID, ChunkID: id, Known: true})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].ChunkID < issues[j].ChunkID
	})

	return &CheckResult{
		Checked:         len(owners) + len(keywordIDs) + len(vectorIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair resolves each inconsistency towards the manifest. Entries of
// unknown documents are purged; known documents are marked so the next
// pass re-indexes or re-embeds them.
func (c *ConsistencyChecker) Repair(ctx context.Context, result *CheckResult) (*RepairResult, error) {
	purgeKeyword := map[string]bool{}
	purgeVector := map[string]bool{}
	reindex := map[string]bool{}
	reembed := map[string]bool{}

	for _, issue := range result.Inconsistencies {
		switch issue.Type {
		case InconsistencyOrphanKeyword:
			if issue.Known {
				reindex[issue.DocumentID] = true
			} else {
				purgeKeyword[issue.DocumentID] = true
			}
		case InconsistencyOrphanVector:
			if issue.Known {
				reembed[issue.DocumentID] = true
			} else {
				purgeVector[issue.DocumentID] = true
			}
		case InconsistencyMissingKeyword:
			reindex[issue.DocumentID] = true
		case InconsistencyMissingVector:
			reembed[issue.DocumentID] = true
		}
	}

	repair := &RepairResult{}
	purged := map[string]bool{}
	for _, id := range sortedKeys(purgeKeyword) {
		if err := c.keyword.Remove(ctx, id); err != nil {
			return repair, fmt.Errorf("purge keyword postings of %s: %w", id, err)
		}
		purged[id] = true
	}
	for _, id := range sortedKeys(purgeVector) {
		if err := c.vector.Remove(ctx, id); err != nil {
			return repair, fmt.Errorf("purge vectors of %s: %w", id, err)
		}
		purged[id] = true
	}
	repair.Purged = sortedKeys(purged)

	repair.Reindex = sortedKeys(reindex)
	if err := c.manifest.ClearContentHash(ctx, repair.Reindex...); err != nil {
		return repair, fmt.Errorf("mark documents for reindex: %w", err)
	}
	repair.Reembed = sortedKeys(reembed)
	if err := c.manifest.ClearModelVersion(ctx, repair.Reembed...); err != nil {
		return repair, fmt.Errorf("mark documents for re-embedding: %w", err)
	}

	if len(result.Inconsistencies) > 0 {
		slog.Info("index_reconciled",
			slog.Int("issues", len(result.Inconsistencies)),
			slog.Int("purged", len(repair.Purged)),
			slog.Int("reindex", len(repair.Reindex)),
			slog.Int("reembed", len(repair.Reembed)))
	}
	return repair, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
