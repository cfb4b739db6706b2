package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dillonfkhanna/multi-search/internal/search"
	"github.com/dillonfkhanna/multi-search/internal/ui"
)

type searchOptions struct {
	limit       int
	jsonOutput  bool
	keywordOnly bool
	method      string
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index with hybrid ranking.

Keyword (BM25) and semantic results are normalized and fused; each
result shows the best matching passage of one document. When the
embedding model is unavailable the results come from keywords alone
and a warning is printed.`,
		Example: `  multisearch search "fox hunting habits"
  multisearch search canine --limit 5
  multisearch search "quarterly report" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: search.result_limit_default)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "Use keyword search only")
	cmd.Flags().StringVar(&opts.method, "fusion", "", "Fusion method: minmax or rrf (default: search.fusion_method)")

	return cmd
}

func runSearch(cmd *cobra.Command, a *app, query string, opts searchOptions) error {
	var method search.FusionMethod
	switch opts.method {
	case "":
	case string(search.FusionMinMax), string(search.FusionRRF):
		method = search.FusionMethod(opts.method)
	default:
		return fmt.Errorf("unknown fusion method %q (supported: minmax, rrf)", opts.method)
	}

	m, err := a.openIndex(cmd, opts.keywordOnly)
	if err != nil {
		return err
	}
	defer closeIndex(m)

	resp, err := m.Search(cmd.Context(), query, search.Options{
		Limit:       opts.limit,
		Method:      method,
		KeywordOnly: opts.keywordOnly,
	})
	if err != nil {
		return err
	}
	slog.Info("search_complete",
		slog.Int("results", len(resp.Results)),
		slog.Duration("took", resp.Took))

	r := ui.NewResultsRenderer(a.uiConfig(cmd.OutOrStdout()))
	if opts.jsonOutput {
		return r.RenderJSON(query, resp)
	}
	return r.Render(query, resp)
}
