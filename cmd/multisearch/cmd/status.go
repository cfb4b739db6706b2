package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dillonfkhanna/multi-search/internal/ui"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Long:  `Show document and chunk counts, the keyword backend, the active embedding model and the size of the index on disk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.openIndex(cmd, false)
			if err != nil {
				return err
			}
			defer closeIndex(m)

			st, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			r := ui.NewStatusRenderer(a.uiConfig(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(st)
			}
			return r.Render(st)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}
