package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PYEXEC_CONFIG env, ./config.yaml, /etc/pyexec/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PYEXEC_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/pyexec/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("PYEXEC_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/pyexec/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
//
// The container contract variables (PYTHON_EXECUTE_TIMEOUT, AWS_*, S3_*,
// SOUNDFONT_PATH) keep their documented names. Everything else uses the
// PYEXEC_ prefix. Malformed numeric values are reported rather than ignored,
// since a silently defaulted timeout would change execution behavior.
func applyEnvOverrides(cfg *Config) error {
	intVar := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}
	strVar := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if err := intVar("PYTHON_EXECUTE_TIMEOUT", &cfg.Execution.Timeout); err != nil {
		return err
	}
	if err := intVar("PYEXEC_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := intVar("PYEXEC_MAX_CONCURRENT", &cfg.Execution.MaxConcurrent); err != nil {
		return err
	}
	if err := intVar("PYEXEC_STORAGE_SIZE", &cfg.Storage.MaxSize); err != nil {
		return err
	}

	strVar("PYEXEC_HOST", &cfg.Server.Host)
	strVar("PYEXEC_PYTHON", &cfg.Execution.Python)
	strVar("PYEXEC_WORK_DIR", &cfg.Execution.WorkDir)
	strVar("SOUNDFONT_PATH", &cfg.Runtime.SoundfontPath)

	strVar("AWS_ACCESS_KEY_ID", &cfg.S3.AccessKeyID)
	strVar("AWS_SECRET_ACCESS_KEY", &cfg.S3.SecretAccessKey)
	strVar("AWS_REGION", &cfg.S3.Region)
	strVar("S3_BUCKET_NAME", &cfg.S3.Bucket)
	strVar("S3_ENDPOINT_URL", &cfg.S3.EndpointURL)
	strVar("S3_PREFIX", &cfg.S3.Prefix)

	strVar("PYEXEC_STORAGE", &cfg.Storage.Type)
	strVar("PYEXEC_STORAGE_DSN", &cfg.Storage.Postgres.DSN)

	strVar("PYEXEC_AUTH_TYPE", &cfg.Auth.Type)
	strVar("PYEXEC_JWT_SECRET", &cfg.Auth.JWT.Secret)

	strVar("PYEXEC_LOG_LEVEL", &cfg.Logging.Level)
	strVar("PYEXEC_LOG_FORMAT", &cfg.Logging.Format)
	strVar("PYEXEC_DEBUG", &cfg.Logging.Debug)

	// PYEXEC_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("PYEXEC_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing PYEXEC_API_KEYS JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name string
		file string
		dst  *string
	}{
		{"s3.access_key_id_file", cfg.S3.AccessKeyIDFile, &cfg.S3.AccessKeyID},
		{"s3.secret_access_key_file", cfg.S3.SecretAccessKeyFile, &cfg.S3.SecretAccessKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
