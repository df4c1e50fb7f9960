package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/caseflow/internal/app"
	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Store    string
	DSN      string
	Pipeline string

	// AppOptions are passed to app.New (for testing).
	AppOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the caseflow CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caseflow",
		Short: "caseflow - concurrent case processing",
		Long: `Run loan cases through phased pipelines of lock-protected operations.

Configuration comes from CASEFLOW_* environment variables; the flags below
override them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "store backend (sqlite|postgres|file|memory)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "store data source: file path, directory or connection string")
	cmd.PersistentFlags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline file (.yaml or .cue); default is the embedded loan pipeline")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewProcessCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Store != "" {
		cfg.Store = o.Store
	}
	if o.DSN != "" {
		cfg.DSN = o.DSN
	}
	if o.Pipeline != "" {
		cfg.Pipeline = o.Pipeline
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.setupLogging(cfg.LogLevel)
	return cfg, nil
}

func (o *RootOptions) setupLogging(level slog.Level) {
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// openApp loads configuration and opens the engine. The caller closes it.
func (o *RootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, o.AppOptions...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// Execute runs the command line and returns the process exit code. Errors are
// written to stderr in the selected format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	code := GetExitCode(err)
	if code == ExitFailure {
		// The outcome, failures included, is already on stdout.
		return code
	}
	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if f.Format != "json" {
		f.Format = "text"
	}
	_ = f.Error(errorCode(err), err.Error(), nil)
	return code
}

// errorCode is the error kind of a case error, or COMMAND_ERROR.
func errorCode(err error) string {
	var ce *casefile.Error
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	return "COMMAND_ERROR"
}
