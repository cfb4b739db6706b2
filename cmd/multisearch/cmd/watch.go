package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/ui"
	"github.com/dillonfkhanna/multi-search/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var keywordOnly bool

	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Index directories and keep the index up to date",
		Long: `Index the given directories (default: the current directory), then watch
them and apply every change as it happens. Bursts of writes are merged
into a single pass after the ingest.debounce window.

Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, err := rootsFromArgs(args)
			if err != nil {
				return err
			}
			m, err := a.openIndex(cmd, keywordOnly)
			if err != nil {
				return err
			}
			defer closeIndex(m)

			return a.indexAndWatch(cmd.Context(), m, roots, func(_ context.Context, _ *errgroup.Group, res *index.IngestResult) {
				ui.NewSummaryRenderer(a.uiConfig(cmd.OutOrStdout()), false).Complete(res)
				a.messages(cmd).Successf("watching %d director%s (Ctrl-C to stop)", len(roots), pluralY(len(roots)))
			})
		},
	}

	cmd.Flags().BoolVar(&keywordOnly, "keyword-only", false, "Skip embeddings and build the keyword index only")

	return cmd
}

// indexAndWatch syncs roots once, then applies watcher batches until ctx
// ends. started runs after the initial pass with the group the watcher
// runs in, so callers can add goroutines of their own.
func (a *app) indexAndWatch(
	ctx context.Context,
	m *index.Manager,
	roots []string,
	started func(ctx context.Context, g *errgroup.Group, res *index.IngestResult),
) error {
	c, s, err := a.newCoordinator(m)
	if err != nil {
		return err
	}
	res, err := c.IndexRoots(ctx, roots...)
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}

	w, err := watcher.New(s, watcher.Options{Debounce: a.cfg.Ingest.Debounce})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()
	for _, root := range roots {
		if err := w.Add(root); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return c.Watch(gctx, w) })
	slog.Info("watch_started", slog.Any("roots", roots))
	if started != nil {
		started(gctx, g, res)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("watch_stopped")
	return nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
