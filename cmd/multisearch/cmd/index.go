package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dillonfkhanna/multi-search/internal/ui"
)

type indexOptions struct {
	keywordOnly bool
	verbose     bool
}

func newIndexCmd(a *app) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [dir...]",
		Short: "Index documents under one or more directories",
		Long: `Scan the given directories (default: the current directory) and bring
the index in line with them: new and changed documents are indexed,
unchanged ones skipped and documents that disappeared are removed.

Documents outside the given directories are left alone.`,
		Example: `  multisearch index ~/notes ~/papers
  multisearch index --keyword-only .`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, a, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "Skip embeddings and build the keyword index only")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every document that failed")

	return cmd
}

func runIndex(cmd *cobra.Command, a *app, args []string, opts indexOptions) error {
	roots, err := rootsFromArgs(args)
	if err != nil {
		return err
	}

	m, err := a.openIndex(cmd, opts.keywordOnly)
	if err != nil {
		return err
	}
	defer closeIndex(m)

	c, _, err := a.newCoordinator(m)
	if err != nil {
		return err
	}

	slog.Info("index_started", slog.Any("roots", roots))
	res, err := c.IndexRoots(cmd.Context(), roots...)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	ui.NewSummaryRenderer(a.uiConfig(cmd.OutOrStdout()), opts.verbose).Complete(res)
	return nil
}
