package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/narrated/pyexec/pkg/artifact"
	s3store "github.com/narrated/pyexec/pkg/artifact/s3"
	"github.com/narrated/pyexec/pkg/config"
)

// S3Check handles the s3-check command.
func S3Check(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.S3.Enabled() {
		fmt.Fprintln(out, "FAIL: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		return errors.New("s3 credentials not configured")
	}

	store, err := s3store.New(ctx, s3Config(cfg))
	if err != nil {
		return err
	}
	return runS3Check(ctx, out, store, cfg.S3)
}

func runS3Check(ctx context.Context, out io.Writer, store artifact.AdminStore, cfg config.S3Config) error {
	report, err := artifact.CheckConnectivity(ctx, store, artifact.CheckOptions{
		Region:      cfg.Region,
		EndpointURL: cfg.EndpointURL,
		Out:         out,
	})
	if err != nil {
		fmt.Fprintf(out, "\nFAIL: %v\n", err)
		return fmt.Errorf("s3 connectivity check failed: %w", err)
	}
	if !report.WriteOK {
		fmt.Fprintln(out, "\nPASS (read-only): bucket reachable, test write failed")
		return nil
	}
	fmt.Fprintln(out, "\nPASS: all S3 connectivity tests succeeded")
	return nil
}
