// Package pipeline drives the capture stages over the persisted work queue.
//
// Stages never hand data to each other in memory. Each one selects captures
// by status, claims them with a guarded status transition, does its work and
// records the next status or an error status. Tracking, transfer and
// composite work for different captures runs on a bounded worker pool; within
// one capture the stages run in order and composites are built one at a time.
// Composite builds hold whole rasters in memory, so across captures at most
// pipeline.composite_workers of them run at once.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"earthgazer/internal/catalog"
	"earthgazer/internal/composite"
	"earthgazer/internal/config"
	"earthgazer/internal/ingest"
	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/platform"
	"earthgazer/internal/services"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
	"earthgazer/internal/tracking"
	"earthgazer/internal/transfer"
)

// Deps are the collaborators a Pipeline needs.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Catalog  catalog.Client
	Objects  storage.ObjectStore
	Registry *platform.Registry
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// Pipeline wires the stage implementations together.
type Pipeline struct {
	cfg        *config.Config
	store      *store.Store
	registry   *platform.Registry
	ingestor   *ingest.Ingestor
	tracker    *tracking.Tracker
	transferer *transfer.Transferer
	assembler  *composite.Assembler
	composites *semaphore.Weighted
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// New constructs a Pipeline.
func New(deps Deps) *Pipeline {
	logger := logging.NewComponentLogger(deps.Logger, "pipeline")
	cfg := deps.Config
	return &Pipeline{
		cfg:        cfg,
		store:      deps.Store,
		registry:   deps.Registry,
		ingestor:   ingest.New(deps.Store, deps.Catalog, deps.Metrics, deps.Logger),
		tracker:    tracking.New(deps.Store, deps.Objects, deps.Registry, deps.Metrics, deps.Logger),
		transferer: transfer.New(deps.Store, deps.Objects, cfg.Storage.BackupBase, transfer.PolicyFromConfig(cfg.Transfer), deps.Metrics, deps.Logger),
		assembler: composite.New(deps.Store, deps.Objects, deps.Registry, composite.Options{
			CompositeBase: cfg.Storage.CompositeBase,
			OutputFormat:  cfg.Composite.OutputFormat,
			ScratchDir:    cfg.Paths.ScratchDir,
		}, deps.Metrics, deps.Logger),
		composites: semaphore.NewWeighted(int64(max(cfg.Pipeline.CompositeWorkers, 1))),
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// begin stamps a run ID and stage name onto ctx.
func (p *Pipeline) begin(ctx context.Context, stage string) (context.Context, *slog.Logger, time.Time) {
	ctx = services.WithRunID(ctx, uuid.NewString())
	ctx = services.WithStage(ctx, stage)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	return ctx, logger, time.Now()
}

// finish records stage metrics and exports them when a textfile is configured.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, stage string, started time.Time) {
	elapsed := time.Since(started)
	p.metrics.ObserveStage(stage, elapsed)
	if counts, err := p.store.CaptureStatusCounts(ctx); err == nil {
		p.metrics.SetStatusCounts(counts)
	} else {
		logger.Warn("failed to count captures for metrics", logging.Error(err))
	}
	if err := p.metrics.WriteTextfile(p.cfg.Metrics.TextfilePath); err != nil {
		logging.WarnWithContext(logger, "metrics export failed", "metrics_export_failed",
			logging.Error(err),
			logging.String("path", p.cfg.Metrics.TextfilePath),
			logging.String(logging.FieldImpact, "metrics textfile not refreshed"),
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path permissions"),
		)
	}
	logger.Info("stage finished",
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
}
