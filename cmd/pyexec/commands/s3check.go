package commands

import (
	"github.com/spf13/cobra"

	"github.com/narrated/pyexec/cmd/pyexec/handlers"
)

// S3Check returns the command that verifies object storage connectivity.
func S3Check() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "s3-check",
		Short: "Verify S3 credentials and bucket access",
		Long: `Verify that the configured S3 credentials work and the bucket is usable.

The check lists buckets, ensures the target bucket exists (creating it when
missing), lists a few objects, then writes and deletes a test object.
Exits non-zero when any required step fails.

Examples:
  # Check using AWS_* and S3_* from the environment
  pyexec s3-check

  # Check against an S3-compatible endpoint
  S3_ENDPOINT_URL=http://minio:9000 pyexec s3-check`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.S3Check(cmd.Context(), cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: config.yaml)")

	return cmd
}
