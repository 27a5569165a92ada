package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"earthgazer/internal/catalog"
	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/platform"
	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

// Ingestor polls the catalog for new captures.
type Ingestor struct {
	store   *store.Store
	catalog catalog.Client
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// New constructs an Ingestor.
func New(st *store.Store, client catalog.Client, recorder *metrics.Recorder, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:   st,
		catalog: client,
		metrics: recorder,
		logger:  logging.NewComponentLogger(logger, "ingest"),
	}
}

// Summary reports what one Ingest call did.
type Summary struct {
	Returned   int
	Inserted   int
	Duplicates int
	Skipped    int
}

// Window computes the search window for a location and platform. The start
// resumes from the newest stored capture covering the location, never
// earlier than the location's monitoring start.
func (i *Ingestor) Window(ctx context.Context, loc *store.Location, p *platform.Platform) (catalog.Window, error) {
	start := loc.MonitoringStart
	if start.IsZero() {
		start = store.DefaultMonitoringStart
	}
	end := loc.MonitoringEnd
	if end.IsZero() {
		end = store.DefaultMonitoringEnd
	}
	latest, ok, err := i.store.LatestSensingTime(ctx, p.Name, loc.Latitude, loc.Longitude)
	if err != nil {
		return catalog.Window{}, err
	}
	if ok && latest.After(start) {
		start = latest
	}
	return catalog.Window{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Start:     start,
		End:       end,
	}, nil
}

// Ingest queries the catalog for one location and platform and inserts every
// capture not already stored. A failed catalog query is returned as
// ErrCatalogQuery; rows that cannot be mapped are skipped with a warning.
func (i *Ingestor) Ingest(ctx context.Context, loc *store.Location, p *platform.Platform) (Summary, error) {
	var summary Summary
	if loc == nil || p == nil {
		return summary, services.Wrap(services.ErrValidation, "ingest", "ingest", "location and platform are required", nil)
	}
	ctx = services.WithLocation(ctx, loc.Name)
	logger := logging.WithContext(ctx, i.logger).With(logging.String("platform", p.Name))

	window, err := i.Window(ctx, loc, p)
	if err != nil {
		return summary, err
	}
	if !window.End.After(window.Start) {
		logger.Debug("monitoring window exhausted",
			logging.String("start", window.Start.Format(time.RFC3339)),
			logging.String("end", window.End.Format(time.RFC3339)),
		)
		return summary, nil
	}
	query, err := catalog.RenderQuery(p, window)
	if err != nil {
		return summary, err
	}

	logger.Debug("querying catalog",
		logging.String("start", window.Start.Format(time.RFC3339)),
		logging.String("end", window.End.Format(time.RFC3339)),
	)
	rows, err := i.catalog.Query(ctx, query)
	if err != nil {
		i.metrics.CatalogError(p.Name)
		if errors.Is(err, services.ErrCatalogQuery) {
			return summary, err
		}
		return summary, services.Wrap(services.ErrCatalogQuery, "ingest", "query catalog", fmt.Sprintf("%s at %s", p.Name, loc.Name), err)
	}
	summary.Returned = len(rows)

	for _, row := range rows {
		capture, err := captureFromRow(p.Name, row)
		if err != nil {
			summary.Skipped++
			logging.WarnWithContext(logger, "catalog row skipped", "catalog_row_invalid",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the platform catalog field mapping"),
			)
			continue
		}
		if capture.MissionID != "" && !p.HasMission(capture.MissionID) {
			summary.Skipped++
			logging.WarnWithContext(logger, "catalog row skipped", "catalog_mission_mismatch",
				logging.String(logging.FieldCaptureID, capture.MainID),
				logging.String("mission_id", capture.MissionID),
				logging.String(logging.FieldErrorHint, "check the platform catalog filters"),
			)
			continue
		}
		inserted, err := i.insert(ctx, capture)
		if err != nil {
			return summary, err
		}
		if !inserted {
			summary.Duplicates++
			i.metrics.CatalogDuplicate(p.Name)
			continue
		}
		summary.Inserted++
		i.metrics.CaptureIngested(p.Name)
		logger.Info("capture imported",
			logging.String(logging.FieldCaptureID, capture.MainID),
			logging.String("sensing_time", capture.SensingTime.Format(time.RFC3339)),
			logging.String(logging.FieldEventType, "capture_imported"),
		)
	}

	logger.Info("catalog ingestion complete",
		logging.Int("returned", summary.Returned),
		logging.Int("inserted", summary.Inserted),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// insert reports false when the capture already existed.
func (i *Ingestor) insert(ctx context.Context, capture *store.Capture) (bool, error) {
	inserted, err := i.store.InsertCapture(ctx, capture)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "ingest", "insert capture", capture.MainID, err)
	}
	return inserted, nil
}
