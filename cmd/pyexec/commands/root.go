// Package commands defines the CLI command structure and flag bindings.
//
// Commands parse arguments and flags, then delegate to the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the pyexec CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pyexec",
		Short:         "Execute Python code on a GPU host over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Serve())
	cmd.AddCommand(S3Check())
	cmd.AddCommand(Run())
	cmd.AddCommand(Version())

	return cmd
}
