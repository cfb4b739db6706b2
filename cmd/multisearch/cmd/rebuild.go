package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dillonfkhanna/multi-search/internal/index"
)

func newRebuildCmd(a *app) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "rebuild [dir...]",
		Short: "Delete the index and rebuild it from source documents",
		Long: `Delete the manifest and the keyword and vector indexes, then index the
given directories from scratch. Use this when an index fails its
integrity check. Cached embeddings are kept, so unchanged text is not
sent to the model again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := index.Reset(a.cfg.Storage.Root); err != nil {
				return fmt.Errorf("reset index: %w", err)
			}
			a.messages(cmd).Successf("cleared index at %s", a.cfg.Storage.Root)
			return runIndex(cmd, a, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "Skip embeddings and build the keyword index only")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every document that failed")

	return cmd
}
