// Package tracking discovers the per-band asset files of a capture.
//
// The Tracker lists the objects under a capture's base URL, recognizes band
// assets with the platform grammar and records one TRACK file per band. It
// never moves bytes.
package tracking

import (
	"context"
	"fmt"
	"log/slog"

	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/platform"
	"earthgazer/internal/services"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
)

// Tracker records band assets for captures.
type Tracker struct {
	store    *store.Store
	objects  storage.ObjectStore
	registry *platform.Registry
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// New constructs a Tracker.
func New(st *store.Store, objects storage.ObjectStore, registry *platform.Registry, recorder *metrics.Recorder, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:    st,
		objects:  objects,
		registry: registry,
		metrics:  recorder,
		logger:   logging.NewComponentLogger(logger, "tracking"),
	}
}

type discovered struct {
	url   string
	match platform.Match
}

// Track records TRACK files for every band asset found under the capture's
// base URL and returns how many rows were added. Without force, a capture
// that already has a TRACK file per expected band is left alone and existing
// bands are skipped. With force, existing TRACK rows for rediscovered bands
// are deleted, cascading their lineage edges, and inserted again. A listing
// with no recognizable band asset records nothing and is not an error.
func (t *Tracker) Track(ctx context.Context, capture *store.Capture, force bool) (int, error) {
	if capture == nil {
		return 0, services.Wrap(services.ErrValidation, "tracking", "track", "capture is required", nil)
	}
	ctx = services.WithCaptureID(ctx, capture.MainID)
	logger := logging.WithContext(ctx, t.logger)

	p, ok := t.registry.Get(capture.Platform)
	if !ok {
		return 0, services.Wrap(services.ErrConfiguration, "tracking", "resolve platform", fmt.Sprintf("unknown platform %q", capture.Platform), nil)
	}

	tracked, err := t.store.CountFiles(ctx, capture.MainID, store.MethodTrack)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "tracking", "count files", capture.MainID, err)
	}
	if tracked >= len(p.Bands) && !force {
		logger.Debug("capture already tracked", logging.Int("tracked", tracked))
		return 0, nil
	}

	measure, level, err := p.Radiometry(capture)
	if err != nil {
		return 0, err
	}

	objects, err := t.objects.List(ctx, capture.BaseURL)
	if err != nil {
		return 0, err
	}
	found := make([]discovered, 0, len(p.Bands))
	seen := make(map[string]string, len(p.Bands))
	for _, obj := range objects {
		match := p.Grammar().Parse(obj.URL)
		if !match.Matched() {
			continue
		}
		if first, dup := seen[match.SubID]; dup {
			logger.Debug("band asset listed more than once",
				logging.String("band", match.SubID),
				logging.String("kept", first),
				logging.String("ignored", obj.URL),
			)
			continue
		}
		seen[match.SubID] = obj.URL
		found = append(found, discovered{url: obj.URL, match: match})
	}
	if len(found) == 0 {
		logging.WarnWithContext(logger, "no band assets listed for capture", "tracking_no_assets",
			logging.String("base_url", capture.BaseURL),
			logging.Int("listed", len(objects)),
			logging.String(logging.FieldImpact, "capture is tracked again on the next run"),
			logging.String(logging.FieldErrorHint, "assets may not be published yet; verify base_url if this persists"),
		)
		return 0, nil
	}

	added := 0
	for _, d := range found {
		file := &store.File{
			CaptureID:          capture.MainID,
			SubID:              d.match.SubID,
			Format:             d.match.Format,
			Method:             store.MethodTrack,
			SourcePath:         d.url,
			RadiometricMeasure: measure,
			AtmosphericLevel:   level,
			Status:             store.FileFound,
		}
		inserted, err := t.record(ctx, file, force)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}

	t.metrics.FilesTracked(capture.Platform, added)
	if missing := len(p.Bands) - len(found); missing > 0 {
		logging.WarnWithContext(logger, "capture is missing band assets", "tracking_incomplete",
			logging.Int("found", len(found)),
			logging.Int("expected", len(p.Bands)),
			logging.String(logging.FieldImpact, "composites needing the absent bands will fail"),
			logging.String(logging.FieldErrorHint, "verify the capture base_url listing"),
		)
	}
	logger.Info("capture tracked",
		logging.Int("added", added),
		logging.Int("found", len(found)),
		logging.Bool("force", force),
		logging.String(logging.FieldEventType, "capture_tracked"),
	)
	return added, nil
}

// record inserts one TRACK row, replacing an existing one when force is set.
func (t *Tracker) record(ctx context.Context, file *store.File, force bool) (bool, error) {
	var inserted bool
	err := t.store.WithTx(ctx, func(s *store.Session) error {
		existing, err := s.ListFiles(ctx, store.FileFilter{
			CaptureID: file.CaptureID,
			Methods:   []store.ProcessingMethod{store.MethodTrack},
			SubID:     file.SubID,
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			if !force {
				return nil
			}
			for _, old := range existing {
				if err := s.DeleteFile(ctx, old.ID); err != nil {
					return err
				}
			}
		}
		file.ID = ""
		inserted, err = s.InsertFile(ctx, file)
		return err
	})
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "tracking", "record file", file.CaptureID+"/"+file.SubID, err)
	}
	return inserted, nil
}
