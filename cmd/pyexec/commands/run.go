package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/narrated/pyexec/cmd/pyexec/handlers"
)

// Run returns the command that submits a script to a running server.
//
// Optional flags:
//
//	--server, -s: Base URL of the server
//	--token: Bearer token
//	--timeout, -t: Execution timeout in seconds (0 = server default)
//	--upload: Upload files written to OUTPUT_DIR
//	--json: Print the raw response
func Run() *cobra.Command {
	var opts handlers.RunOptions

	cmd := &cobra.Command{
		Use:   "run <file.py>",
		Short: "Execute a Python file on a pyexec server",
		Long: `Submit a Python file to a running pyexec server and print its output.

Use "-" to read the code from stdin. The command exits non-zero when the
execution fails.

Examples:
  # Run a script on a local server
  pyexec run train.py

  # Run on a remote GPU host and upload outputs
  pyexec run render.py --server http://gpu-1:8000 --upload

  # Print the full response as JSON
  echo 'print(1 + 1)' | pyexec run - --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			return handlers.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Server, "server", "s", "http://localhost:8000", "Base URL of the pyexec server")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Bearer token (default: $PYEXEC_TOKEN)")
	cmd.Flags().IntVarP(&opts.Timeout, "timeout", "t", 0, "Execution timeout in seconds (0 = server default)")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "Upload files written to OUTPUT_DIR")
	cmd.Flags().StringVar(&opts.UploadPrefix, "upload-prefix", "", "Object key prefix for uploads")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the raw response as JSON")
	cmd.Flags().DurationVar(&opts.HTTPTimeout, "http-timeout", 65*time.Minute, "Overall HTTP request timeout")

	return cmd
}
