// Package app assembles a running case engine from configuration: entity
// store, optional audit archive, lock table, executor, runner and the loan
// pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roach88/caseflow/internal/archive"
	"github.com/roach88/caseflow/internal/config"
	"github.com/roach88/caseflow/internal/engine"
	"github.com/roach88/caseflow/internal/lending"
	"github.com/roach88/caseflow/internal/locktable"
	"github.com/roach88/caseflow/internal/pipeline"
	"github.com/roach88/caseflow/internal/store"
)

// App owns the store and everything built on it.
type App struct {
	Config       config.Config
	Store        store.EntityStore
	Orchestrator *engine.Orchestrator
	Services     *lending.Services
	Registry     *prometheus.Registry

	files *store.FileStore
}

type options struct {
	services *lending.Services
	ids      engine.IDGenerator
	clock    engine.Clock
}

// Option customises New, mostly for tests.
type Option func(*options)

// WithServices replaces the default instant, always-succeeding simulated
// collaborators.
func WithServices(s *lending.Services) Option {
	return func(o *options) { o.services = s }
}

// WithIDGenerator sets the case id source.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the audit timestamp source.
func WithClock(c engine.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New opens the configured store and builds the engine. Close releases the
// store.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.services == nil {
		o.services = lending.NewServices(nil)
	}

	var def *pipeline.Definition
	if cfg.Pipeline != "" {
		var err error
		if def, err = pipeline.Load(cfg.Pipeline); err != nil {
			return nil, err
		}
	}
	phases, err := lending.Phases(def, o.services)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	s, err := store.Open(ctx, cfg.Store, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	files, _ := s.(*store.FileStore)
	sink, err := openSink(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if sink != nil {
		s = store.NewArchiving(s, sink, cfg.AuditCeiling)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	locks := locktable.New(
		locktable.WithTimeout(cfg.LockTimeout),
		locktable.WithWaitObserver(metrics.ObserveLockWait),
	)
	execOpts := []engine.ExecutorOption{
		engine.WithRetryPolicy(cfg.RetryPolicy()),
		engine.WithLockMode(cfg.LockMode),
		engine.WithMetrics(metrics),
	}
	if o.clock != nil {
		execOpts = append(execOpts, engine.WithClock(o.clock))
	}
	exec := engine.NewExecutor(s, locks, execOpts...)
	runner := engine.NewRunner(exec, engine.WithParallelism(cfg.MaxParallel))

	var orchOpts []engine.OrchestratorOption
	if o.ids != nil {
		orchOpts = append(orchOpts, engine.WithIDGenerator(o.ids))
	}
	orch, err := engine.NewOrchestrator(exec, runner, phases, orchOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	slog.Debug("engine ready",
		"store", cfg.Store,
		"archive", cfg.Archive,
		"lock_mode", cfg.LockMode,
		"phases", len(phases))
	return &App{
		Config:       cfg,
		Store:        s,
		Orchestrator: orch,
		Services:     o.services,
		Registry:     reg,
		files:        files,
	}, nil
}

// StorageStats reports file usage of a file store. ok is false for other
// backends.
func (a *App) StorageStats() (st store.FileStats, ok bool, err error) {
	if a.files == nil {
		return st, false, nil
	}
	st, err = a.files.Stats()
	return st, true, err
}

// Close closes the store.
func (a *App) Close() error {
	return a.Store.Close()
}

func openSink(ctx context.Context, cfg config.Config) (archive.Sink, error) {
	switch cfg.Archive {
	case "", "none":
		return nil, nil
	case "file":
		sink, err := archive.NewFileSink(cfg.ArchiveDir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "minio":
		sink, err := archive.NewMinIOSink(ctx, archive.MinIOConfig{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "s3":
		sink, err := archive.NewS3Sink(ctx, archive.S3Config{
			Region:          cfg.ArchiveRegion,
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
			PathStyle:       cfg.ArchiveEndpoint != "",
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown archive %q", cfg.Archive)
	}
}
