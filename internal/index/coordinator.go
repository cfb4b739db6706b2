package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dillonfkhanna/multi-search/internal/scanner"
	"github.com/dillonfkhanna/multi-search/internal/watcher"
)

// Coordinator drives ingestion from the bundled directory scanner and
// filesystem watcher.
type Coordinator struct {
	manager *Manager
	scanner *scanner.Scanner
}

// NewCoordinator creates a coordinator feeding m.
func NewCoordinator(m *Manager, s *scanner.Scanner) *Coordinator {
	return &Coordinator{manager: m, scanner: s}
}

// IndexRoots scans roots and syncs the index with what was found:
// documents under a root that no longer exist are deleted, documents
// outside every root are left alone.
func (c *Coordinator) IndexRoots(ctx context.Context, roots ...string) (*IngestResult, error) {
	abs := make([]string, len(roots))
	for i, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", r, err)
		}
		abs[i] = a
	}

	files, err := c.scanner.Collect(ctx, abs...)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	slog.Info("scan_complete", slog.Int("roots", len(abs)), slog.Int("files", len(files)))

	sources := make([]Source, len(files))
	for i, f := range files {
		sources[i] = Source{Path: f.Path, ModifiedAt: f.ModTime}
	}
	return c.manager.Sync(ctx, sources, abs...)
}

// HandleEvents applies one debounced watcher batch as a single pass.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) (*IngestResult, error) {
	var (
		sources []Source
		removed []string
		rescan  []watcher.FileEvent
	)
	seen := make(map[string]bool)
	add := func(src Source) {
		if !seen[src.Path] {
			seen[src.Path] = true
			sources = append(sources, src)
		}
	}

	for _, event := range events {
		slog.Debug("watch_event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))

		switch event.Operation {
		case watcher.OpIgnoreChange:
			rescan = append(rescan, event)
			continue
		case watcher.OpDelete:
			removed = append(removed, event.Path)
			continue
		}

		// Lstat so a symlink swapped in after the scan is not followed.
		info, err := os.Lstat(event.Path)
		switch {
		case os.IsNotExist(err):
			removed = append(removed, event.Path)
		case err != nil:
			add(Source{Path: event.Path, Err: err})
		case info.IsDir():
			files, err := c.scanner.CollectUnder(ctx, event.Root, event.Path)
			if err != nil {
				slog.Warn("watch_scan_failed", slog.String("dir", event.Path), slog.String("error", err.Error()))
				continue
			}
			for _, f := range files {
				add(Source{Path: f.Path, ModifiedAt: f.ModTime})
			}
		case info.Mode()&os.ModeSymlink != 0:
			slog.Debug("watch_symlink_skipped", slog.String("path", event.Path))
		case info.Size() > c.scanner.MaxFileSize():
			// Grown past the cap: stale content must not stay searchable.
			slog.Warn("watch_file_too_large",
				slog.String("path", event.Path),
				slog.Int64("size", info.Size()),
				slog.Int64("max", c.scanner.MaxFileSize()))
			removed = append(removed, event.Path)
		default:
			add(Source{Path: event.Path, ModifiedAt: info.ModTime()})
		}
	}

	// An ignore-file change can hide or reveal anything below its directory.
	for _, event := range rescan {
		files, err := c.scanner.CollectUnder(ctx, event.Root, event.Path)
		if err != nil {
			slog.Warn("watch_scan_failed", slog.String("dir", event.Path), slog.String("error", err.Error()))
			continue
		}
		for _, f := range files {
			add(Source{Path: f.Path, ModifiedAt: f.ModTime})
		}
		removed = append(removed, event.Path)
	}

	if len(removed) == 0 {
		if len(sources) == 0 {
			return &IngestResult{}, nil
		}
		return c.manager.Ingest(ctx, sources)
	}
	// Sync scoped to the removed paths deletes their documents, and those
	// of removed directories, unless they reappeared in sources.
	return c.manager.Sync(ctx, sources, removed...)
}

// Watch ingests every batch w produces until ctx ends or w stops. A
// failed pass is logged and watching continues.
func (c *Coordinator) Watch(ctx context.Context, w *watcher.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if ok {
				slog.Warn("watch_error", slog.String("error", err.Error()))
			}
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			res, err := c.HandleEvents(ctx, batch)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("watch_pass_failed", slog.Int("events", len(batch)), slog.String("error", err.Error()))
				continue
			}
			if res.PassID != "" {
				slog.Info("watch_pass_complete",
					slog.String("pass_id", res.PassID),
					slog.Int("events", len(batch)),
					slog.Int("indexed", res.Indexed),
					slog.Int("deleted", res.Deleted),
					slog.Int("failed", len(res.Failed)))
			}
		}
	}
}
