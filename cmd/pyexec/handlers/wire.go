// Package handlers implements the CLI commands.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/artifact"
	s3store "github.com/narrated/pyexec/pkg/artifact/s3"
	"github.com/narrated/pyexec/pkg/auth"
	"github.com/narrated/pyexec/pkg/auth/apikey"
	"github.com/narrated/pyexec/pkg/auth/jwt"
	"github.com/narrated/pyexec/pkg/auth/noop"
	"github.com/narrated/pyexec/pkg/config"
	"github.com/narrated/pyexec/pkg/executor"
	"github.com/narrated/pyexec/pkg/hostinfo"
	"github.com/narrated/pyexec/pkg/service"
	"github.com/narrated/pyexec/pkg/storage/memory"
	"github.com/narrated/pyexec/pkg/storage/postgres"
	"github.com/narrated/pyexec/pkg/transport"
	transporthttp "github.com/narrated/pyexec/pkg/transport/http"
)

// components holds everything the server needs, plus a cleanup hook for
// resources with connections.
type components struct {
	server  *transporthttp.Server
	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// buildServer assembles the server from configuration. artifacts overrides
// the S3 store when non-nil.
func buildServer(ctx context.Context, cfg *config.Config, artifacts artifact.Store, logger *slog.Logger) (*components, error) {
	c := &components{}

	runner := executor.New(executor.Config{
		Python:             cfg.Execution.Python,
		WorkDir:            cfg.Execution.WorkDir,
		OutputDirName:      cfg.Execution.OutputDirName,
		MaxConcurrent:      cfg.Execution.MaxConcurrent,
		MaxOutputFileBytes: cfg.Execution.MaxOutputFileBytes,
		Env:                executionEnv(cfg),
	}, logger)

	prober := hostinfo.New(hostinfo.Config{
		Python:        cfg.Execution.Python,
		NvidiaSMI:     cfg.Runtime.NvidiaSMI,
		SoundfontPath: cfg.Runtime.SoundfontPath,
		CacheTTL:      cfg.Runtime.InfoCacheTTL,
	}, nil)
	if !prober.SoundfontPresent() {
		logger.Warn("soundfont not found, MIDI rendering will fail", "path", cfg.Runtime.SoundfontPath)
	}

	if artifacts == nil && cfg.S3.Enabled() {
		s, err := s3store.New(ctx, s3Config(cfg))
		if err != nil {
			return nil, fmt.Errorf("creating S3 store: %w", err)
		}
		artifacts = s
		logger.Info("object storage enabled", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.EndpointURL)
	} else if artifacts == nil {
		logger.Info("object storage disabled, uploads will be rejected")
	}

	records, err := newRecordStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if records != nil {
		c.closers = append(c.closers, records.Close)
		logger.Info("execution records enabled", "type", cfg.Storage.Type)
	} else {
		logger.Info("execution records disabled")
	}

	validation := api.DefaultValidationConfig()
	validation.ReservedNames = []string{cfg.Execution.OutputDirName}

	svc, err := service.New(runner, prober, artifacts, records, service.Config{
		DefaultTimeout:    cfg.Execution.Timeout,
		UploadPrefix:      cfg.S3.Prefix,
		UploadConcurrency: cfg.S3.UploadConcurrency,
		Validation:        validation,
	}, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("creating service: %w", err)
	}

	authMW, err := newAuthMiddleware(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	c.server = transporthttp.NewServer(svc, svc, records,
		transporthttp.WithAddr(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.EffectiveWriteTimeout()),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithHTTPMiddleware(authMW),
		transporthttp.WithLogger(logger),
	)
	return c, nil
}

// executionEnv exports the container contract variables to executed code,
// so values that came from the config file are visible to it as well.
func executionEnv(cfg *config.Config) []string {
	env := []string{
		"SOUNDFONT_PATH=" + cfg.Runtime.SoundfontPath,
		"PYTHON_EXECUTE_TIMEOUT=" + strconv.Itoa(cfg.Execution.Timeout),
		"AWS_REGION=" + cfg.S3.Region,
		"S3_BUCKET_NAME=" + cfg.S3.Bucket,
	}
	if cfg.S3.Enabled() {
		env = append(env,
			"AWS_ACCESS_KEY_ID="+cfg.S3.AccessKeyID,
			"AWS_SECRET_ACCESS_KEY="+cfg.S3.SecretAccessKey,
		)
	}
	if cfg.S3.EndpointURL != "" {
		env = append(env, "S3_ENDPOINT_URL="+cfg.S3.EndpointURL)
	}
	return env
}

func s3Config(cfg *config.Config) s3store.Config {
	return s3store.Config{
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		EndpointURL:     cfg.S3.EndpointURL,
		UsePathStyle:    cfg.S3.UsePathStyle,
	}
}

// newRecordStore returns nil when record storage is disabled.
func newRecordStore(ctx context.Context, cfg config.StorageConfig) (transport.ExecutionStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		return s, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newAuthMiddleware builds the authentication and rate limiting middleware.
// The metrics path is reachable without credentials.
func newAuthMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth.Type {
	case "none", "":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
		chain.DefaultDecision = auth.Yes
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		a := apikey.New(entries)
		if a.Len() == 0 {
			return nil, errors.New("auth type apikey requires at least one key")
		}
		chain.Authenticators = []auth.Authenticator{a}
	case "jwt":
		jc := jwt.Config{
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			TenantClaim: cfg.Auth.JWT.TenantClaim,
		}
		if cfg.Auth.JWT.PublicKeyFile != "" {
			key, err := jwt.LoadPublicKey(cfg.Auth.JWT.PublicKeyFile)
			if err != nil {
				return nil, err
			}
			jc.PublicKey = key
		} else {
			jc.Secret = []byte(cfg.Auth.JWT.Secret)
		}
		a, err := jwt.New(jc)
		if err != nil {
			return nil, err
		}
		chain.Authenticators = []auth.Authenticator{a}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimits; rl.DefaultRPM > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, rpm := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, rl.DefaultRPM)
	}

	bypass := append([]string(nil), auth.DefaultBypassEndpoints...)
	if p := cfg.Observability.Metrics.Path; cfg.Observability.Metrics.Enabled && p != "" {
		bypass = append(bypass, p)
	}
	return auth.Middleware(chain, limiter, bypass), nil
}
