// Package config provides configuration loading and validation for the
// audit trail service. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the audit trail service.
type Config struct {
	// Environment name (development, staging, production)
	Env string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// AuditSecret is the shared signing secret. Every recorder and verifier
	// instance in a deployment must hold the same value. A missing secret
	// is fatal at startup: without it no event can be recorded and no
	// verification result can be trusted.
	AuditSecret string `koanf:"audit_secret"`

	// Recorder tuning
	RecordTimeoutMS  int `koanf:"record_timeout_ms"`
	RecordMaxRetries int `koanf:"record_max_retries"`

	// Read-path tuning
	VerifyPageSize int `koanf:"verify_page_size"`
	QueryMaxLimit  int `koanf:"query_max_limit"`

	// Archive (S3-compatible object storage for export artifacts, optional)
	ArchiveBucketName      string `koanf:"archive_bucket_name"`
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`
	ArchiveEndpoint        string `koanf:"archive_endpoint"`
	ArchivePrefix          string `koanf:"archive_prefix"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporterType string  `koanf:"tracing_exporter_type"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingAuditSecret = errors.New("AUDIT_TRAIL_SECRET is required")
	ErrInvalidInteger     = errors.New("value must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultEnv                 = "development"
	DefaultRecordTimeoutMS     = 5000
	DefaultRecordMaxRetries    = 3
	DefaultVerifyPageSize      = 500
	DefaultQueryMaxLimit       = 100
	DefaultArchivePrefix       = "audit-exports"
	DefaultTracingSamplingRate = 0.1
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). If a config file path is provided and the file cannot be loaded,
// an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	recordTimeout, err := getEnvIntOrDefault("AUDIT_RECORD_TIMEOUT_MS", k.Int("record_timeout_ms"), DefaultRecordTimeoutMS)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	recordRetries, err := getEnvIntOrDefault("AUDIT_RECORD_MAX_RETRIES", k.Int("record_max_retries"), DefaultRecordMaxRetries)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	verifyPageSize, err := getEnvIntOrDefault("AUDIT_VERIFY_PAGE_SIZE", k.Int("verify_page_size"), DefaultVerifyPageSize)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	queryMaxLimit, err := getEnvIntOrDefault("AUDIT_QUERY_MAX_LIMIT", k.Int("query_max_limit"), DefaultQueryMaxLimit)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	samplingRate, err := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	tracingEnabled := k.Bool("tracing_enabled")
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		tracingEnabled = val == "true" || val == "1" || val == "yes" || val == "on"
	}

	cfg := &Config{
		Env:              getEnvOrDefaultMulti([]string{"AUDIT_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:      getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		AuditSecret:      getEnvOrKoanf("AUDIT_TRAIL_SECRET", k, "audit_secret"),
		RecordTimeoutMS:  recordTimeout,
		RecordMaxRetries: recordRetries,
		VerifyPageSize:   verifyPageSize,
		QueryMaxLimit:    queryMaxLimit,

		ArchiveBucketName:      getEnvOrKoanf("ARCHIVE_BUCKET_NAME", k, "archive_bucket_name"),
		ArchiveAccessKeyID:     getEnvOrKoanf("ARCHIVE_ACCESS_KEY_ID", k, "archive_access_key_id"),
		ArchiveSecretAccessKey: getEnvOrKoanf("ARCHIVE_SECRET_ACCESS_KEY", k, "archive_secret_access_key"),
		ArchiveEndpoint:        getEnvOrKoanf("ARCHIVE_ENDPOINT", k, "archive_endpoint"),
		ArchivePrefix:          getEnvOrDefault("ARCHIVE_PREFIX", k.String("archive_prefix"), DefaultArchivePrefix),

		TracingEnabled:      tracingEnabled,
		TracingExporterType: getEnvOrDefault("TRACING_EXPORTER_TYPE", k.String("tracing_exporter_type"), "otlp-http"),
		TracingOTLPEndpoint: getEnvOrKoanf("TRACING_OTLP_ENDPOINT", k, "tracing_otlp_endpoint"),
		TracingSamplingRate: samplingRate,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.AuditSecret == "" {
		errs = append(errs, ErrMissingAuditSecret)
	}

	return errs
}

// ArchiveConfigured reports whether the optional archive sink is fully
// configured.
func (c *Config) ArchiveConfigured() bool {
	return c.ArchiveBucketName != "" &&
		c.ArchiveAccessKeyID != "" &&
		c.ArchiveSecretAccessKey != "" &&
		c.ArchiveEndpoint != ""
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or default. Returns an error if the
// environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInteger)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value, or default. Returns an error if the
// environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}
