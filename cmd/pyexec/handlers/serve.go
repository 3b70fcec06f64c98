package handlers

import (
	"context"
	"fmt"

	"github.com/narrated/pyexec/pkg/config"
	"github.com/narrated/pyexec/pkg/debug"
)

// Serve handles the serve command. It blocks until SIGINT or SIGTERM and
// then drains running executions.
func Serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	c, err := buildServer(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("closing resources", "error", err)
		}
	}()

	logger.Info("pyexec configured",
		"timeout_seconds", cfg.Execution.Timeout,
		"max_concurrent", cfg.Execution.MaxConcurrent,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"debug", debug.Categories(),
	)
	return c.server.ListenAndServe()
}
