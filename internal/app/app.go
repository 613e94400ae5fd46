// Package app builds the shared component graph used by the CLI, the web
// server and the Cloud Function entry points.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Lllllllleong/mangasensei/internal/bucket"
	"github.com/Lllllllleong/mangasensei/internal/config"
	"github.com/Lllllllleong/mangasensei/internal/gcp"
	"github.com/Lllllllleong/mangasensei/internal/intake"
	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/processor"
	"github.com/Lllllllleong/mangasensei/internal/services"
	"github.com/Lllllllleong/mangasensei/internal/session"
	"github.com/Lllllllleong/mangasensei/internal/telemetry"
	"github.com/Lllllllleong/mangasensei/internal/web"
)

// App owns every long-lived client of one process.
type App struct {
	Config       *config.Config
	Registry     *prometheus.Registry
	Metrics      *telemetry.Metrics
	Validator    *intake.Validator
	Ledger       ledger.Ledger
	Orchestrator *services.Orchestrator

	archiver *gcp.Archiver
	tracer   *sdktrace.TracerProvider
}

// SetupLogging installs a JSON slog handler as the default logger.
func SetupLogging(w io.Writer, level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// New connects the processor, storage backend, ledger and optional archive bucket.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	downloader, err := bucket.Open(ctx, cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage backend: %w", err)
	}

	l, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	a := &App{
		Config:    cfg,
		Registry:  reg,
		Metrics:   metrics,
		Validator: intake.NewValidator(cfg.Intake),
		Ledger:    l,
	}

	// A nil *gcp.Archiver must not reach the orchestrator as a non-nil interface.
	var archiver services.Archiver
	if cfg.ArchiveBucket != "" {
		a.archiver, err = gcp.NewArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open archive bucket: %w", err)
		}
		archiver = a.archiver
	}

	a.tracer, err = telemetry.NewTracerProvider(cfg.Tracing, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	if a.tracer != nil {
		otel.SetTracerProvider(a.tracer)
	}

	a.Orchestrator = services.NewOrchestrator(
		processor.New(cfg.Processor, nil),
		downloader,
		l,
		archiver,
		metrics,
		services.OrchestratorConfig{
			BatchConcurrency: cfg.BatchConcurrency,
			Dedupe:           cfg.Dedupe,
		},
	)

	slog.Info("Application initialized.",
		"processorUrl", cfg.Processor.URL,
		"storageBackend", cfg.Storage.Backend,
		"bucket", cfg.Storage.Bucket,
		"ledgerBackend", cfg.Ledger.Backend,
		"archiveBucket", cfg.ArchiveBucket,
		"tracingExporter", cfg.Tracing.Exporter)
	return a, nil
}

// Server builds the web server on top of the shared components.
func (a *App) Server() *web.Server {
	return web.NewServer(web.Options{
		Validator: a.Validator,
		Processor: a.Orchestrator,
		Sessions:  session.NewManager(a.Config.SessionTTL),
		Blobs:     web.NewRegistry(a.Config.BlobTTL, a.Metrics),
		Metrics:   a.Metrics,
		Gatherer:  a.Registry,
	})
}

// Close flushes pending spans and releases the ledger and archive clients.
func (a *App) Close() error {
	var firstErr error
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			firstErr = err
		}
	}
	if a.archiver != nil {
		if err := a.archiver.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Ledger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
