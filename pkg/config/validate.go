package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Execution.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("execution.timeout must be > 0, got %d", c.Execution.Timeout))
	}
	if c.Execution.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("execution.max_concurrent must be > 0, got %d", c.Execution.MaxConcurrent))
	}
	if c.Execution.Python == "" {
		errs = append(errs, fmt.Errorf("execution.python is required"))
	}
	if c.Execution.OutputDirName == "" {
		errs = append(errs, fmt.Errorf("execution.output_dir_name is required"))
	}

	// Credentials come in pairs.
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, fmt.Errorf("s3.access_key_id and s3.secret_access_key must be set together"))
	}
	if c.S3.Enabled() && c.S3.Bucket == "" {
		errs = append(errs, fmt.Errorf("s3.bucket is required when credentials are set"))
	}

	switch c.Storage.Type {
	case "memory", "postgres", "none":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", or \"none\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" && c.Auth.JWT.PublicKeyFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.public_key_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	return errors.Join(errs...)
}
