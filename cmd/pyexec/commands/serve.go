package commands

import (
	"github.com/spf13/cobra"

	"github.com/narrated/pyexec/cmd/pyexec/handlers"
)

// Serve returns the command that runs the HTTP server.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: auto-detect config.yaml)
func Serve() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the code execution server",
		Long: `Run the HTTP server that executes Python code submitted to
POST /v1/code/execute/python.

Configuration is read from the YAML file, then overridden by the container
environment (PYTHON_EXECUTE_TIMEOUT, AWS_*, S3_*, SOUNDFONT_PATH) and
PYEXEC_* variables.

Examples:
  # Serve with defaults on 0.0.0.0:8000
  pyexec serve

  # Serve with an explicit configuration file
  pyexec serve --config /etc/pyexec/config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Serve(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: config.yaml)")

	return cmd
}
