package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/caseflow/internal/store"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var stats bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored cases",
		Long: `List every stored case with its status, phase cursor and write count.
With --stats a file store also reports active, archived and backup file usage.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			cases, err := a.Orchestrator.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list cases", err)
			}
			view := listView{Cases: cases}
			if stats {
				st, ok, err := a.StorageStats()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read storage stats", err)
				}
				if ok {
					view.Storage = &st
				}
			}
			return rootOpts.formatter(cmd).Success(view)
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "include file store usage")
	return cmd
}

type listView struct {
	Cases   []store.Summary  `json:"cases"`
	Storage *store.FileStats `json:"storage,omitempty"`
}
