// Package config reads runtime configuration from CASEFLOW_* environment
// variables. Command-line flags override the values after loading.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/caseflow/internal/engine"
)

// Store and archive backends.
var (
	Stores   = []string{"sqlite", "postgres", "file", "memory"}
	Archives = []string{"none", "file", "minio", "s3"}
)

type Config struct {
	Store string
	DSN   string

	Archive          string
	ArchiveDir       string
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveUseSSL    bool

	// AuditCeiling is the live audit length above which entries rotate to
	// the archive. Ignored when Archive is none.
	AuditCeiling int

	// LockTimeout bounds lock waits; zero blocks until ctx is done.
	LockTimeout  time.Duration
	LockMode     engine.LockMode
	MaxRetries   int
	RetryBackoff time.Duration
	MaxParallel  int

	// Pipeline is a YAML or CUE pipeline file; empty uses the embedded one.
	Pipeline string

	Addr     string
	LogLevel slog.Level
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Store:         "sqlite",
		DSN:           "caseflow.db",
		Archive:       "none",
		ArchiveDir:    "archive",
		ArchiveBucket: "caseflow-audit",
		ArchiveRegion: "us-east-1",
		AuditCeiling:  100,
		LockMode:      engine.LockOptimistic,
		MaxRetries:    engine.DefaultRetryPolicy.MaxRetries,
		RetryBackoff:  engine.DefaultRetryPolicy.Backoff,
		Addr:          ":8080",
		LogLevel:      slog.LevelInfo,
	}
}

// FromEnv overlays CASEFLOW_* variables on Default. Every malformed
// variable is reported.
func FromEnv() (Config, error) {
	c := Default()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.Store = String("CASEFLOW_STORE", c.Store)
	c.DSN = String("CASEFLOW_DSN", c.DSN)
	c.Archive = String("CASEFLOW_ARCHIVE", c.Archive)
	c.ArchiveDir = String("CASEFLOW_ARCHIVE_DIR", c.ArchiveDir)
	c.ArchiveBucket = String("CASEFLOW_ARCHIVE_BUCKET", c.ArchiveBucket)
	c.ArchiveEndpoint = String("CASEFLOW_ARCHIVE_ENDPOINT", c.ArchiveEndpoint)
	c.ArchiveRegion = String("CASEFLOW_ARCHIVE_REGION", c.ArchiveRegion)
	c.ArchiveAccessKey = String("CASEFLOW_ARCHIVE_ACCESS_KEY", c.ArchiveAccessKey)
	c.ArchiveSecretKey = String("CASEFLOW_ARCHIVE_SECRET_KEY", c.ArchiveSecretKey)
	c.ArchiveUseSSL, err = Bool("CASEFLOW_ARCHIVE_USE_SSL", c.ArchiveUseSSL)
	collect(err)

	c.AuditCeiling, err = Int("CASEFLOW_AUDIT_CEILING", c.AuditCeiling)
	collect(err)
	c.LockTimeout, err = Duration("CASEFLOW_LOCK_TIMEOUT", c.LockTimeout)
	collect(err)
	c.MaxRetries, err = Int("CASEFLOW_MAX_RETRIES", c.MaxRetries)
	collect(err)
	c.RetryBackoff, err = Duration("CASEFLOW_RETRY_BACKOFF", c.RetryBackoff)
	collect(err)
	c.MaxParallel, err = Int("CASEFLOW_MAX_PARALLEL", c.MaxParallel)
	collect(err)

	c.LockMode, err = engine.ParseLockMode(String("CASEFLOW_LOCK_MODE", string(c.LockMode)))
	collect(err)

	c.Pipeline = String("CASEFLOW_PIPELINE", c.Pipeline)
	c.Addr = String("CASEFLOW_ADDR", c.Addr)
	if v := String("CASEFLOW_LOG_LEVEL", ""); v != "" {
		collect(c.LogLevel.UnmarshalText([]byte(v)))
	}

	if err := errors.Join(errs...); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(Stores, c.Store) {
		errs = append(errs, fmt.Errorf("unknown store %q (want %s)", c.Store, strings.Join(Stores, ", ")))
	}
	if c.DSN == "" && c.Store != "memory" {
		errs = append(errs, fmt.Errorf("store %s needs a DSN", c.Store))
	}
	if !slices.Contains(Archives, c.Archive) {
		errs = append(errs, fmt.Errorf("unknown archive %q (want %s)", c.Archive, strings.Join(Archives, ", ")))
	}
	if c.Archive != "none" && c.AuditCeiling <= 0 {
		errs = append(errs, fmt.Errorf("audit ceiling must be positive, got %d", c.AuditCeiling))
	}
	if c.Archive == "minio" && c.ArchiveEndpoint == "" {
		errs = append(errs, fmt.Errorf("minio archive needs CASEFLOW_ARCHIVE_ENDPOINT"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RetryBackoff < 0 || c.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("durations must not be negative"))
	}
	if c.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("max parallel must not be negative, got %d", c.MaxParallel))
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the engine retry policy.
func (c Config) RetryPolicy() engine.RetryPolicy {
	return engine.RetryPolicy{MaxRetries: c.MaxRetries, Backoff: c.RetryBackoff}
}
