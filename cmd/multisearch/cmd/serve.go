package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/mcp"
)

type serveOptions struct {
	transport string
	watch     []string
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to AI clients over MCP",
		Long: `Start a Model Context Protocol server exposing the search and
index_status tools. stdout carries the protocol; logs go to the log file.

With --watch the given directories are indexed first and kept up to
date while the server runs.`,
		Example: `  multisearch serve
  multisearch serve --watch ~/notes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport: stdio")
	cmd.Flags().StringSliceVar(&opts.watch, "watch", nil, "Directory to index and watch while serving (repeatable)")

	return cmd
}

func runServe(cmd *cobra.Command, a *app, opts serveOptions) error {
	m, err := a.openIndex(cmd, false)
	if err != nil {
		return err
	}
	defer closeIndex(m)

	srv, err := mcp.NewServer(m)
	if err != nil {
		return err
	}

	if len(opts.watch) == 0 {
		return srv.Serve(cmd.Context(), opts.transport)
	}

	roots, err := rootsFromArgs(opts.watch)
	if err != nil {
		return err
	}
	// The watcher stops when the client disconnects.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	return a.indexAndWatch(ctx, m, roots, func(ctx context.Context, g *errgroup.Group, res *index.IngestResult) {
		slog.Info("serve_initial_index",
			slog.Int("indexed", res.Indexed),
			slog.Int("deleted", res.Deleted),
			slog.Int("failed", len(res.Failed)))
		g.Go(func() error {
			defer cancel()
			return srv.Serve(ctx, opts.transport)
		})
	})
}
