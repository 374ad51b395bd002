package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/machinekit/pkg/definition"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "graph",
		Short:   "Print a mermaid diagram of a definition",
		Example: "  machinekit graph -f machine.yaml > machine.mmd",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile(file); err != nil {
				return err
			}
			def, err := definition.Load(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load definition", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), definition.Mermaid(def))
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the YAML definition")

	return cmd
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a definition and build its machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile(file); err != nil {
				return err
			}
			def, err := definition.Load(file)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid definition", err)
			}
			m, err := definition.Build(def)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid definition", err)
			}
			rootOpts.log().Debug("definition is valid", "file", file)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d states, %d transitions, initial %s\n",
				m.Name(), len(m.States()), len(def.Transitions), def.Initial)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the YAML definition")

	return cmd
}
