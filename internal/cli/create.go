package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/caseflow/internal/lending"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	File string
	ID   string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a case from a loan application",
		Long: `Create a case in status received. The application file is YAML or JSON
and is stored as the case's application section.

Example:
  caseflow create --file application.yaml
  caseflow create --file application.yaml --id loan-0042 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "application file (.yaml or .json)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "case id (generated when empty)")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	sections := map[string]json.RawMessage{}
	if opts.File != "" {
		raw, err := readApplication(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read application", err)
		}
		sections[lending.SectionApplication] = raw
	}

	a, err := opts.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp(a)

	rec, err := a.Orchestrator.Create(cmd.Context(), opts.ID, sections)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create case", err)
	}
	return opts.formatter(cmd).Success(recordView{rec})
}

// readApplication decodes a YAML (or JSON) application and re-encodes it as
// the JSON section value.
func readApplication(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var app lending.Application
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return json.Marshal(app)
}
