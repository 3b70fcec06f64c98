// Package config provides unified configuration for the pyexec server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (container variables and PYEXEC_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the pyexec server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Execution     ExecutionConfig     `yaml:"execution"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	S3            S3Config            `yaml:"s3"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`          // default: "0.0.0.0"
	Port         int           `yaml:"port"`          // default: 8000
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0 (derived from execution timeout)
	MaxBodySize  int64         `yaml:"max_body_size"` // default: 64MB
}

// ExecutionConfig holds code execution settings.
type ExecutionConfig struct {
	Timeout            int    `yaml:"timeout"`               // seconds, default: 3600 (PYTHON_EXECUTE_TIMEOUT)
	MaxConcurrent      int    `yaml:"max_concurrent"`        // default: 4
	Python             string `yaml:"python"`                // default: "python3"
	WorkDir            string `yaml:"work_dir"`              // default: os.TempDir()
	OutputDirName      string `yaml:"output_dir_name"`       // default: "output"
	MaxOutputFileBytes int64  `yaml:"max_output_file_bytes"` // default: 512MB
}

// RuntimeConfig holds host probing settings.
type RuntimeConfig struct {
	SoundfontPath string        `yaml:"soundfont_path"` // default: /usr/share/sounds/sf2/FluidR3_GM.sf2
	NvidiaSMI     string        `yaml:"nvidia_smi"`     // default: "nvidia-smi"
	InfoCacheTTL  time.Duration `yaml:"info_cache_ttl"` // default: 5m
}

// S3Config holds object storage settings. Uploads are enabled when
// credentials are present.
type S3Config struct {
	AccessKeyID         string `yaml:"access_key_id"`
	AccessKeyIDFile     string `yaml:"access_key_id_file"` // _file variant for access_key_id
	SecretAccessKey     string `yaml:"secret_access_key"`
	SecretAccessKeyFile string `yaml:"secret_access_key_file"` // _file variant for secret_access_key
	Region              string `yaml:"region"`                 // default: "us-east-1"
	Bucket              string `yaml:"bucket"`                 // default: "narrated"
	EndpointURL         string `yaml:"endpoint_url"`           // optional, S3-compatible storage
	UsePathStyle        bool   `yaml:"use_path_style"`         // always on when endpoint_url is set
	Prefix              string `yaml:"prefix"`                 // default: "executions"
	UploadConcurrency   int    `yaml:"upload_concurrency"`     // default: 4
}

// Enabled reports whether object storage credentials are configured.
func (c S3Config) Enabled() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// StorageConfig holds execution record storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "none", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type       string         `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys    []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT        JWTConfig      `yaml:"jwt"`
	RateLimits RateLimits     `yaml:"rate_limits"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds settings for bearer JWT validation.
type JWTConfig struct {
	Secret        string `yaml:"secret"`          // HMAC secret for HS256
	SecretFile    string `yaml:"secret_file"`     // _file variant for secret
	PublicKeyFile string `yaml:"public_key_file"` // PEM RSA public key for RS256
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	TenantClaim   string `yaml:"tenant_claim"` // default: "tenant_id"
}

// RateLimits configures the in-process per-tier limiter.
type RateLimits struct {
	DefaultRPM int            `yaml:"default_rpm"` // 0 = unlimited
	Tiers      map[string]int `yaml:"tiers"`       // tier -> requests per minute
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log level and debug category settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			ReadTimeout: 30 * time.Second,
			MaxBodySize: 64 << 20,
		},
		Execution: ExecutionConfig{
			Timeout:            3600,
			MaxConcurrent:      4,
			Python:             "python3",
			OutputDirName:      "output",
			MaxOutputFileBytes: 512 << 20,
		},
		Runtime: RuntimeConfig{
			SoundfontPath: "/usr/share/sounds/sf2/FluidR3_GM.sf2",
			NvidiaSMI:     "nvidia-smi",
			InfoCacheTTL:  5 * time.Minute,
		},
		S3: S3Config{
			Region:            "us-east-1",
			Bucket:            "narrated",
			Prefix:            "executions",
			UploadConcurrency: 4,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// EffectiveWriteTimeout returns the HTTP write timeout. When unset, it is
// derived from the execution timeout so long-running executions can reply.
func (c *Config) EffectiveWriteTimeout() time.Duration {
	if c.Server.WriteTimeout > 0 {
		return c.Server.WriteTimeout
	}
	return time.Duration(c.Execution.Timeout)*time.Second + 2*time.Minute
}
