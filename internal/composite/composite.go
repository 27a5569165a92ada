// Package composite assembles backed-up bands into multi-channel images.
//
// Bands are stacked in the order the platform's composite definition lists
// them. A capture missing a required band, or holding two backups for one,
// is marked composite_generation_error and no output is written.
package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/platform"
	"earthgazer/internal/raster"
	"earthgazer/internal/services"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
)

// Options configures an Assembler.
type Options struct {
	CompositeBase string
	OutputFormat  string
	ScratchDir    string
}

// Assembler builds composite files for captures.
type Assembler struct {
	store    *store.Store
	objects  storage.ObjectStore
	registry *platform.Registry
	opts     Options
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// New constructs an Assembler.
func New(st *store.Store, objects storage.ObjectStore, registry *platform.Registry, opts Options, recorder *metrics.Recorder, logger *slog.Logger) *Assembler {
	if opts.OutputFormat == "" {
		opts.OutputFormat = raster.FormatTIFF
	}
	return &Assembler{
		store:    st,
		objects:  objects,
		registry: registry,
		opts:     opts,
		metrics:  recorder,
		logger:   logging.NewComponentLogger(logger, "composite"),
	}
}

// Destination is the composite URL for a capture.
func (a *Assembler) Destination(capture *store.Capture, name string) string {
	file := fmt.Sprintf("%s_%s.%s", capture.MainID, name, raster.Extension(a.opts.OutputFormat))
	return storage.Join(a.opts.CompositeBase, capture.Platform, capture.MainID, file)
}

// Assemble builds the named composite for a capture. Band selection problems
// are reported through Result and recorded on the capture; the returned error
// is reserved for I/O, raster and persistence failures, which are recorded on
// the capture as well.
func (a *Assembler) Assemble(ctx context.Context, capture *store.Capture, name string) (Result, error) {
	if capture == nil {
		return Result{}, services.Wrap(services.ErrValidation, "composite", "assemble", "capture is required", nil)
	}
	ctx = services.WithCaptureID(ctx, capture.MainID)
	logger := logging.WithContext(ctx, a.logger).With(logging.String("composite", name))

	p, ok := a.registry.Get(capture.Platform)
	if !ok {
		return Result{}, services.Wrap(services.ErrConfiguration, "composite", "resolve platform", fmt.Sprintf("unknown platform %q", capture.Platform), nil)
	}
	bands, ok := p.Composite(name)
	if !ok {
		return Result{}, services.Wrap(services.ErrConfiguration, "composite", "resolve composite", fmt.Sprintf("%s defines no composite %q", p.Name, name), nil)
	}

	existing, err := a.store.ListFiles(ctx, store.FileFilter{
		CaptureID: capture.MainID,
		Methods:   []store.ProcessingMethod{store.MethodComposite},
		SubID:     name,
	})
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "composite", "lookup composite", capture.MainID, err)
	}
	if len(existing) > 0 {
		a.metrics.Composite(capture.Platform, metrics.OutcomeExisting)
		logger.Debug("composite already generated", logging.String("storage_path", existing[0].StoragePath))
		return Result{Outcome: Assembled, File: existing[0], Existing: true}, nil
	}

	inputs, result, err := a.selectBands(ctx, capture.MainID, bands)
	if err != nil {
		return Result{}, err
	}
	if result.Outcome != Assembled {
		cause := result.Err()
		if err := a.store.FailCapture(ctx, capture.MainID, store.CaptureCompositeError, services.Kind(cause), cause.Error()); err != nil {
			return result, services.Wrap(services.ErrTransient, "composite", "record failure", capture.MainID, err)
		}
		a.metrics.Composite(capture.Platform, result.Outcome.String())
		logging.WarnWithContext(logger, "composite skipped", "composite_band_selection",
			logging.String("band", result.Band),
			logging.String("outcome", result.Outcome.String()),
			logging.ErrorKind(cause),
			logging.String(logging.FieldImpact, "capture marked composite_generation_error"),
			logging.String(logging.FieldErrorHint, "run backup for the capture, then earthgazer capture retry"),
		)
		return result, nil
	}

	file, err := a.build(ctx, capture, name, inputs)
	if err != nil {
		a.metrics.Composite(capture.Platform, metrics.OutcomeFailed)
		if failErr := a.store.FailCapture(context.WithoutCancel(ctx), capture.MainID, store.CaptureCompositeError, services.Kind(err), err.Error()); failErr != nil {
			logger.Warn("failed to record composite failure", logging.Error(failErr))
		}
		logging.ErrorWithContext(logger, "composite generation failed", "composite_failed",
			logging.Error(err),
			logging.ErrorKind(err),
		)
		return Result{}, err
	}

	a.metrics.Composite(capture.Platform, metrics.OutcomeAssembled)
	logger.Info("composite generated",
		logging.String("storage_path", file.StoragePath),
		logging.String(logging.FieldEventType, "composite_generated"),
	)
	return Result{Outcome: Assembled, File: file}, nil
}

// selectBands picks exactly one stored BACKUP file per band, in band order.
func (a *Assembler) selectBands(ctx context.Context, captureID string, bands []string) ([]*store.File, Result, error) {
	inputs := make([]*store.File, 0, len(bands))
	for _, band := range bands {
		files, err := a.store.ListFiles(ctx, store.FileFilter{
			CaptureID: captureID,
			Methods:   []store.ProcessingMethod{store.MethodBackup},
			SubID:     band,
			Statuses:  []store.FileStatus{store.FileStored},
		})
		if err != nil {
			return nil, Result{}, services.Wrap(services.ErrTransient, "composite", "select bands", captureID, err)
		}
		switch len(files) {
		case 0:
			return nil, Result{Outcome: MissingBand, Band: band}, nil
		case 1:
			inputs = append(inputs, files[0])
		default:
			return nil, Result{Outcome: DuplicateBand, Band: band}, nil
		}
	}
	return inputs, Result{Outcome: Assembled}, nil
}

func (a *Assembler) build(ctx context.Context, capture *store.Capture, name string, inputs []*store.File) (*store.File, error) {
	if a.opts.ScratchDir != "" {
		if err := os.MkdirAll(a.opts.ScratchDir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrRaster, "composite", "scratch", a.opts.ScratchDir, err)
		}
	}
	workDir, err := os.MkdirTemp(a.opts.ScratchDir, "composite-*")
	if err != nil {
		return nil, services.Wrap(services.ErrRaster, "composite", "scratch", "create work dir", err)
	}
	defer os.RemoveAll(workDir)

	images := make([]image.Image, 0, len(inputs))
	sourceIDs := make([]string, 0, len(inputs))
	for i, input := range inputs {
		local := filepath.Join(workDir, fmt.Sprintf("%d_%s", i, storage.Base(input.StoragePath)))
		if err := a.objects.Download(ctx, input.StoragePath, local); err != nil {
			return nil, err
		}
		img, err := raster.DecodeFile(local)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
		sourceIDs = append(sourceIDs, input.ID)
	}

	stacked, err := raster.Stack(images)
	if err != nil {
		return nil, err
	}
	ext := raster.Extension(a.opts.OutputFormat)
	output := filepath.Join(workDir, name+"."+ext)
	if err := raster.EncodeFile(output, stacked, a.opts.OutputFormat); err != nil {
		return nil, err
	}
	dest := a.Destination(capture, name)
	if err := a.objects.Upload(ctx, output, dest); err != nil {
		return nil, err
	}

	file := &store.File{
		CaptureID:          capture.MainID,
		SubID:              name,
		Format:             ext,
		Method:             store.MethodComposite,
		SourcePath:         dest,
		StoragePath:        dest,
		RadiometricMeasure: inputs[0].RadiometricMeasure,
		AtmosphericLevel:   inputs[0].AtmosphericLevel,
		Status:             store.FileStored,
	}
	err = a.store.WithTx(ctx, func(s *store.Session) error {
		if _, err := s.InsertFile(ctx, file, sourceIDs...); err != nil {
			return err
		}
		_, err := s.TransitionCapture(ctx, capture.MainID, store.CaptureCompositeGenerated,
			store.CaptureBackedUp, store.CaptureAssembling, store.CaptureCompositeGenerated)
		return err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "composite", "record composite", dest, err)
	}
	return file, nil
}

// Summary reports one capture's composite pass.
type Summary struct {
	Assembled int
	Existing  int
	Failed    int
}

// AssembleCapture builds each named composite the capture's platform defines,
// one at a time. Names the platform does not define are skipped.
func (a *Assembler) AssembleCapture(ctx context.Context, capture *store.Capture, names []string) (Summary, error) {
	var summary Summary
	var errs []error
	applicable, err := a.Applicable(ctx, capture, names)
	if err != nil {
		return summary, err
	}
	for _, name := range applicable {
		result, err := a.Assemble(ctx, capture, name)
		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, err)
		case result.Outcome != Assembled:
			summary.Failed++
		case result.Existing:
			summary.Existing++
		default:
			summary.Assembled++
		}
	}
	return summary, errors.Join(errs...)
}

// Applicable filters names to the composites the capture's platform defines
// and whose backed-up bands the raster codec can read. Composites skipped for
// an unreadable band format leave the capture untouched; absent bands are left
// for Assemble to report.
func (a *Assembler) Applicable(ctx context.Context, capture *store.Capture, names []string) ([]string, error) {
	p, ok := a.registry.Get(capture.Platform)
	if !ok {
		return nil, nil
	}
	backups, err := a.store.ListFiles(ctx, store.FileFilter{
		CaptureID: capture.MainID,
		Methods:   []store.ProcessingMethod{store.MethodBackup},
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "composite", "list backups", capture.MainID, err)
	}
	formats := make(map[string]string, len(backups))
	for _, f := range backups {
		formats[f.SubID] = f.Format
	}

	var out []string
	for _, name := range names {
		bands, ok := p.Composite(name)
		if !ok {
			continue
		}
		if band, format, unreadable := unreadableBand(bands, formats); unreadable {
			logging.WithContext(ctx, a.logger).Info("composite skipped; band format cannot be decoded",
				logging.String("composite", name),
				logging.String("band", band),
				logging.String("format", format),
			)
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func unreadableBand(bands []string, formats map[string]string) (string, string, bool) {
	for _, band := range bands {
		if format, ok := formats[band]; ok && !raster.Decodable(format) {
			return band, format, true
		}
	}
	return "", "", false
}
