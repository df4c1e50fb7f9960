package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/caseflow/internal/app"
	"github.com/roach88/caseflow/internal/engine"
)

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <case-id>",
		Short: "Run a case through its remaining phases",
		Long: `Run a case from its current phase until it is decided, suspended or has
finished every phase. Processing a decided or suspended case changes nothing.

Exit status is 1 when the case ends suspended.

Example:
  caseflow process loan-0001
  caseflow process loan-0001 --pipeline ./pipelines/loan.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(rootOpts, cmd, func(ctx context.Context, a *app.App) (engine.Outcome, error) {
				return a.Orchestrator.ProcessCase(ctx, args[0])
			})
		},
	}
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "resume <case-id>",
		Short:         "Return a suspended case to its prior status and process it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(rootOpts, cmd, func(ctx context.Context, a *app.App) (engine.Outcome, error) {
				return a.Orchestrator.Resume(ctx, args[0])
			})
		},
	}
}

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:           "withdraw <case-id>",
		Short:         "Withdraw an undecided case",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(rootOpts, cmd, func(ctx context.Context, a *app.App) (engine.Outcome, error) {
				return a.Orchestrator.Withdraw(ctx, args[0], reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	return cmd
}

func runOutcome(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, *app.App) (engine.Outcome, error)) error {
	a, err := opts.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp(a)

	out, err := fn(cmd.Context(), a)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to "+cmd.Name()+" case", err)
	}
	if err := opts.formatter(cmd).Success(outcomeView{out}); err != nil {
		return err
	}
	if out.Suspended() {
		return NewExitError(ExitFailure, "case "+out.CaseID+" suspended")
	}
	return nil
}
