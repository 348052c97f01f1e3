package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// clearAuditEnv blanks every variable Load reads so host values cannot
// leak into assertions. t.Setenv restores the originals afterwards.
func clearAuditEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUDIT_ENV", "ENV", "GO_ENV",
		"DATABASE_URL", "AUDIT_TRAIL_SECRET",
		"AUDIT_RECORD_TIMEOUT_MS", "AUDIT_RECORD_MAX_RETRIES",
		"AUDIT_VERIFY_PAGE_SIZE", "AUDIT_QUERY_MAX_LIMIT",
		"ARCHIVE_BUCKET_NAME", "ARCHIVE_ACCESS_KEY_ID",
		"ARCHIVE_SECRET_ACCESS_KEY", "ARCHIVE_ENDPOINT", "ARCHIVE_PREFIX",
		"TRACING_ENABLED", "TRACING_EXPORTER_TYPE",
		"TRACING_OTLP_ENDPOINT", "TRACING_SAMPLING_RATE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_MissingRequiredValues(t *testing.T) {
	clearAuditEnv(t)

	cfg, errs := Load("")
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if len(errs) != 2 {
		t.Fatalf("Load() returned %d errors, want 2: %v", len(errs), errs)
	}

	var haveDB, haveSecret bool
	for _, err := range errs {
		if errors.Is(err, ErrMissingDatabaseURL) {
			haveDB = true
		}
		if errors.Is(err, ErrMissingAuditSecret) {
			haveSecret = true
		}
	}
	if !haveDB {
		t.Error("Load() errors missing ErrMissingDatabaseURL")
	}
	if !haveSecret {
		t.Error("Load() errors missing ErrMissingAuditSecret")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAuditEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/audit")
	t.Setenv("AUDIT_TRAIL_SECRET", "s3cret")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}

	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if cfg.RecordTimeoutMS != DefaultRecordTimeoutMS {
		t.Errorf("RecordTimeoutMS = %d, want %d", cfg.RecordTimeoutMS, DefaultRecordTimeoutMS)
	}
	if cfg.RecordMaxRetries != DefaultRecordMaxRetries {
		t.Errorf("RecordMaxRetries = %d, want %d", cfg.RecordMaxRetries, DefaultRecordMaxRetries)
	}
	if cfg.VerifyPageSize != DefaultVerifyPageSize {
		t.Errorf("VerifyPageSize = %d, want %d", cfg.VerifyPageSize, DefaultVerifyPageSize)
	}
	if cfg.QueryMaxLimit != DefaultQueryMaxLimit {
		t.Errorf("QueryMaxLimit = %d, want %d", cfg.QueryMaxLimit, DefaultQueryMaxLimit)
	}
	if cfg.ArchivePrefix != DefaultArchivePrefix {
		t.Errorf("ArchivePrefix = %q, want %q", cfg.ArchivePrefix, DefaultArchivePrefix)
	}
	if cfg.TracingEnabled {
		t.Error("TracingEnabled = true, want false by default")
	}
	if cfg.TracingSamplingRate != DefaultTracingSamplingRate {
		t.Errorf("TracingSamplingRate = %v, want %v", cfg.TracingSamplingRate, DefaultTracingSamplingRate)
	}
}

func TestLoad_FileValues(t *testing.T) {
	clearAuditEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
env: staging
database_url: postgres://file-host/audit
audit_secret: file-secret
record_timeout_ms: 1500
query_max_limit: 25
tracing_enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}
	if cfg.Env != "staging" {
		t.Errorf("Env = %q, want staging", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://file-host/audit" {
		t.Errorf("DatabaseURL = %q, want file value", cfg.DatabaseURL)
	}
	if cfg.RecordTimeoutMS != 1500 {
		t.Errorf("RecordTimeoutMS = %d, want 1500", cfg.RecordTimeoutMS)
	}
	if cfg.QueryMaxLimit != 25 {
		t.Errorf("QueryMaxLimit = %d, want 25", cfg.QueryMaxLimit)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false, want true from file")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearAuditEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database_url: postgres://file-host/audit
audit_secret: file-secret
record_timeout_ms: 1500
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env-host/audit")
	t.Setenv("AUDIT_RECORD_TIMEOUT_MS", "2500")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}
	if cfg.DatabaseURL != "postgres://env-host/audit" {
		t.Errorf("DatabaseURL = %q, environment must win over file", cfg.DatabaseURL)
	}
	if cfg.RecordTimeoutMS != 2500 {
		t.Errorf("RecordTimeoutMS = %d, environment must win over file", cfg.RecordTimeoutMS)
	}
	if cfg.AuditSecret != "file-secret" {
		t.Errorf("AuditSecret = %q, file value should survive when env is unset", cfg.AuditSecret)
	}
}

func TestLoad_InvalidIntegerEnv(t *testing.T) {
	clearAuditEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/audit")
	t.Setenv("AUDIT_TRAIL_SECRET", "s3cret")
	t.Setenv("AUDIT_RECORD_MAX_RETRIES", "three")

	_, errs := Load("")
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrInvalidInteger) {
			found = true
		}
	}
	if !found {
		t.Errorf("Load() errors = %v, want ErrInvalidInteger", errs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearAuditEnv(t)

	_, errs := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if len(errs) != 1 {
		t.Fatalf("Load() errors = %v, want exactly one file error", errs)
	}
}

func TestConfig_ArchiveConfigured(t *testing.T) {
	cfg := &Config{
		ArchiveBucketName:      "audit-archive",
		ArchiveAccessKeyID:     "AKIA",
		ArchiveSecretAccessKey: "secret",
		ArchiveEndpoint:        "https://storage.example.com",
	}
	if !cfg.ArchiveConfigured() {
		t.Error("ArchiveConfigured() = false with all values set")
	}

	cfg.ArchiveEndpoint = ""
	if cfg.ArchiveConfigured() {
		t.Error("ArchiveConfigured() = true with missing endpoint")
	}
}
