package cli

import (
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var audit bool
	cmd := &cobra.Command{
		Use:   "inspect <case-id>",
		Short: "Show a case's status, write count and audit trail",
		Long: `Show the observable state of a case: status, phase cursor, persisted and
counted writes, audit length and ordering, and sections present. With --audit
the full audit trail is listed, archived entries included.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			ins, err := a.Orchestrator.Inspect(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to inspect case", err)
			}
			view := inspectView{Inspection: ins}
			if audit {
				if view.Audit, err = a.Orchestrator.Audit(cmd.Context(), args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to read audit trail", err)
				}
			}
			return rootOpts.formatter(cmd).Success(view)
		},
	}
	cmd.Flags().BoolVar(&audit, "audit", false, "include the full audit trail")
	return cmd
}
