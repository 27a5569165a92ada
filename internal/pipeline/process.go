package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"earthgazer/internal/logging"
	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

// Stages selects which per-capture stages a pass runs.
type Stages struct {
	Track     bool
	Backup    bool
	Composite bool
	// Force re-tracks captures that are already tracked.
	Force bool
	// Composites overrides the configured composite names.
	Composites []string
	// Platform restricts the pass to one platform when set.
	Platform string
}

func (s Stages) name() string {
	var parts []string
	if s.Track {
		parts = append(parts, "track")
	}
	if s.Backup {
		parts = append(parts, "backup")
	}
	if s.Composite {
		parts = append(parts, "composite")
	}
	return strings.Join(parts, "+")
}

// statuses lists the capture statuses a pass picks up.
func (s Stages) statuses() []store.CaptureStatus {
	var out []store.CaptureStatus
	if s.Track {
		out = append(out, store.CaptureCatalogImported)
	}
	if s.Backup || (s.Track && s.Force) {
		out = append(out, store.CaptureTracked)
	}
	if s.Composite {
		out = append(out, store.CaptureBackedUp)
	}
	return out
}

// Report totals one capture pass.
type Report struct {
	Captures     int
	Tracked      int
	FilesTracked int
	BackedUp     int
	FilesCopied  int
	Composited   int
	// Deferred counts captures whose listing held no band assets yet; they
	// stay catalog_imported for the next pass.
	Deferred int
	Failed   int
}

type tally struct {
	mu     sync.Mutex
	report Report
}

func (t *tally) add(fn func(r *Report)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.report)
}

// Process runs the selected stages over every eligible capture. Captures are
// independent units of work processed by up to pipeline.workers goroutines;
// per-capture failures are recorded on the capture and counted, never
// returned.
func (p *Pipeline) Process(ctx context.Context, stages Stages) (Report, error) {
	stage := stages.name()
	ctx, logger, started := p.begin(ctx, stage)
	defer p.finish(ctx, logger, stage, started)

	if reset, err := p.store.ResetStuckCaptures(ctx); err != nil {
		return Report{}, services.Wrap(services.ErrTransient, stage, "reset stuck captures", "", err)
	} else if reset > 0 {
		logging.WarnWithContext(logger, "reset captures left in flight by an interrupted run", "stuck_captures_reset",
			logging.Int64("count", reset),
			logging.String(logging.FieldImpact, "captures re-enter their stage"),
			logging.String(logging.FieldErrorHint, "no action needed"),
		)
	}

	captures, err := p.store.ListCaptures(ctx, store.CaptureFilter{
		Statuses: stages.statuses(),
		Platform: stages.Platform,
	})
	if err != nil {
		return Report{}, services.Wrap(services.ErrTransient, stage, "list captures", "", err)
	}

	names := stages.Composites
	if len(names) == 0 {
		names = p.cfg.Composite.Names
	}

	var t tally
	t.report.Captures = len(captures)
	var g errgroup.Group
	g.SetLimit(p.workers())
	for _, capture := range captures {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.processCapture(ctx, logger, capture, stages, names, &t)
			return nil
		})
	}
	_ = g.Wait()

	report := t.report
	logger.Info("capture pass summary",
		logging.Int("captures", report.Captures),
		logging.Int("tracked", report.Tracked),
		logging.Int("files_tracked", report.FilesTracked),
		logging.Int("backed_up", report.BackedUp),
		logging.Int("files_copied", report.FilesCopied),
		logging.Int("composited", report.Composited),
		logging.Int("deferred", report.Deferred),
		logging.Int("failed", report.Failed),
	)
	return report, ctx.Err()
}

func (p *Pipeline) workers() int {
	if p.cfg.Pipeline.Workers > 0 {
		return p.cfg.Pipeline.Workers
	}
	return 1
}

// processCapture advances one capture through the selected stages in order.
func (p *Pipeline) processCapture(ctx context.Context, logger *slog.Logger, capture *store.Capture, stages Stages, names []string, t *tally) {
	ctx = services.WithCaptureID(ctx, capture.MainID)
	logger = logger.With(logging.String(logging.FieldCaptureID, capture.MainID))

	trackable := capture.Status == store.CaptureCatalogImported ||
		(stages.Force && capture.Status == store.CaptureTracked)
	if stages.Track && trackable {
		if !p.claim(ctx, logger, capture, store.CaptureTracking, capture.Status) {
			return
		}
		added, err := p.tracker.Track(ctx, capture, stages.Force)
		if err != nil {
			p.fail(ctx, logger, capture, store.CaptureTrackingError, err, t)
			return
		}
		if added == 0 && p.awaitingAssets(ctx, logger, capture) {
			if p.claim(ctx, logger, capture, store.CaptureCatalogImported, store.CaptureTracking) {
				t.add(func(r *Report) { r.Deferred++ })
			}
			return
		}
		if !p.claim(ctx, logger, capture, store.CaptureTracked, store.CaptureTracking) {
			return
		}
		t.add(func(r *Report) {
			r.Tracked++
			r.FilesTracked += added
		})
	}

	if stages.Backup && capture.Status == store.CaptureTracked {
		if !p.claim(ctx, logger, capture, store.CaptureTransferring, store.CaptureTracked) {
			return
		}
		summary, err := p.transferer.BackupCapture(ctx, capture)
		if err != nil {
			p.fail(ctx, logger, capture, store.CaptureTransferError, err, t)
			return
		}
		if !p.claim(ctx, logger, capture, store.CaptureBackedUp, store.CaptureTransferring) {
			return
		}
		t.add(func(r *Report) {
			r.BackedUp++
			r.FilesCopied += summary.Copied
		})
	}

	if stages.Composite && capture.Status == store.CaptureBackedUp {
		applicable, err := p.assembler.Applicable(ctx, capture, names)
		if err != nil {
			logging.ErrorWithContext(logger, "composite selection failed", "composite_select_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database connectivity"),
			)
			return
		}
		if len(applicable) == 0 {
			logger.Debug("no configured composite applies to capture", logging.String("platform", capture.Platform))
			return
		}
		if err := p.composites.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.composites.Release(1)
		if !p.claim(ctx, logger, capture, store.CaptureAssembling, store.CaptureBackedUp) {
			return
		}
		summary, err := p.assembler.AssembleCapture(ctx, capture, applicable)
		switch {
		case err != nil || summary.Failed > 0:
			// Assemble already recorded composite_generation_error.
			t.add(func(r *Report) { r.Failed++ })
		default:
			if _, err := p.store.TransitionCapture(ctx, capture.MainID, store.CaptureCompositeGenerated, store.CaptureAssembling); err != nil {
				p.fail(ctx, logger, capture, store.CaptureCompositeError, err, t)
				return
			}
			capture.Status = store.CaptureCompositeGenerated
			t.add(func(r *Report) { r.Composited++ })
		}
	}
}

// awaitingAssets reports whether a capture still has no TRACK files after
// tracking found nothing to record.
func (p *Pipeline) awaitingAssets(ctx context.Context, logger *slog.Logger, capture *store.Capture) bool {
	n, err := p.store.CountFiles(ctx, capture.MainID, store.MethodTrack)
	if err != nil {
		logger.Warn("failed to count tracked files; retrying capture next pass", logging.Error(err))
		return true
	}
	return n == 0
}

// claim moves a capture from one of the given statuses to next. It reports
// false when another worker or process got there first.
func (p *Pipeline) claim(ctx context.Context, logger *slog.Logger, capture *store.Capture, next store.CaptureStatus, from ...store.CaptureStatus) bool {
	ok, err := p.store.TransitionCapture(ctx, capture.MainID, next, from...)
	if err != nil {
		logging.ErrorWithContext(logger, "capture status update failed", "status_update_failed",
			logging.String("to", string(next)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
		return false
	}
	if !ok {
		logger.Debug("capture status changed concurrently; skipping", logging.String("to", string(next)))
		return false
	}
	capture.Status = next
	return true
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, capture *store.Capture, status store.CaptureStatus, cause error, t *tally) {
	kind := services.Kind(cause)
	if err := p.store.FailCapture(context.WithoutCancel(ctx), capture.MainID, status, kind, cause.Error()); err != nil {
		logger.Warn("failed to record capture error", logging.Error(err))
	}
	capture.Status = status
	t.add(func(r *Report) { r.Failed++ })
	logging.ErrorWithContext(logger, "capture stage failed", "capture_failed",
		logging.String("status", string(status)),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "inspect with earthgazer capture show, then earthgazer capture retry"),
	)
}

// RunOptions configures a full pipeline run.
type RunOptions struct {
	Force      bool
	Composites []string
}

// RunReport totals a full run.
type RunReport struct {
	Ingest IngestReport
	Pass   Report
}

// Run ingests new captures and then tracks, backs up and assembles every
// eligible capture.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	var report RunReport
	ingested, err := p.Ingest(ctx)
	report.Ingest = ingested
	if err != nil {
		logging.WarnWithContext(p.logger, "ingestion failed; processing stored captures", "run_ingest_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no new captures this run"),
		)
	}
	pass, passErr := p.Process(ctx, Stages{
		Track:      true,
		Backup:     true,
		Composite:  true,
		Force:      opts.Force,
		Composites: opts.Composites,
	})
	report.Pass = pass
	if passErr != nil {
		return report, passErr
	}
	return report, err
}
