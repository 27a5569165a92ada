package pipeline

import (
	"context"
	"fmt"

	"earthgazer/internal/logging"
	"earthgazer/internal/services"
)

// IngestReport totals one ingestion pass.
type IngestReport struct {
	Attempts int
	Failures int
	Inserted int
	Dupes    int
}

// Ingest polls the catalog for every active location and monitored
// platform. A failure for one location is logged and does not stop the
// others; the stage fails only when every attempt failed.
func (p *Pipeline) Ingest(ctx context.Context) (IngestReport, error) {
	var report IngestReport
	ctx, logger, started := p.begin(ctx, "ingest")
	defer p.finish(ctx, logger, "ingest", started)

	platforms, err := p.registry.Select(p.cfg.Platforms.Monitored)
	if err != nil {
		return report, err
	}
	locations, err := p.store.ListLocations(ctx, true)
	if err != nil {
		return report, services.Wrap(services.ErrTransient, "ingest", "list locations", "", err)
	}
	if len(locations) == 0 {
		logging.WarnWithContext(logger, "no active locations", "ingest_no_locations",
			logging.String(logging.FieldImpact, "nothing to ingest"),
			logging.String(logging.FieldErrorHint, "add one with earthgazer location add"),
		)
		return report, nil
	}

	var lastErr error
	for _, plat := range platforms {
		for _, loc := range locations {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Attempts++
			summary, err := p.ingestor.Ingest(ctx, loc, plat)
			if err != nil {
				report.Failures++
				lastErr = err
				logging.ErrorWithContext(logger, "catalog ingestion failed", "ingest_location_failed",
					logging.String(logging.FieldLocation, loc.Name),
					logging.String("platform", plat.Name),
					logging.ErrorKind(err),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check catalog credentials and project billing"),
				)
				continue
			}
			report.Inserted += summary.Inserted
			report.Dupes += summary.Duplicates
		}
	}

	logger.Info("ingestion summary",
		logging.Int("attempts", report.Attempts),
		logging.Int("failures", report.Failures),
		logging.Int("inserted", report.Inserted),
		logging.Int("duplicates", report.Dupes),
	)
	if report.Attempts > 0 && report.Failures == report.Attempts {
		return report, services.Wrap(services.ErrCatalogQuery, "ingest", "ingest", fmt.Sprintf("all %d catalog queries failed", report.Attempts), lastErr)
	}
	return report, nil
}
