// Package transfer backs up tracked band assets into project storage.
//
// A backup is idempotent: the BACKUP file linked to a TRACK file is the
// durable record, and the destination object's existence is checked before
// every copy so a crash between copy and insert is repaired on the next run
// without copying again.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/services"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
)

// Transferer copies TRACK files to the backup namespace.
type Transferer struct {
	store      *store.Store
	objects    storage.ObjectStore
	backupBase string
	policy     Policy
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// New constructs a Transferer writing below backupBase.
func New(st *store.Store, objects storage.ObjectStore, backupBase string, policy Policy, recorder *metrics.Recorder, logger *slog.Logger) *Transferer {
	return &Transferer{
		store:      st,
		objects:    objects,
		backupBase: backupBase,
		policy:     policy,
		metrics:    recorder,
		logger:     logging.NewComponentLogger(logger, "transfer"),
	}
}

// Destination is the deterministic backup URL for a tracked file.
func (t *Transferer) Destination(capture *store.Capture, file *store.File) string {
	return storage.Join(t.backupBase, capture.Platform, capture.MainID, storage.Base(file.SourcePath))
}

type outcome int

const (
	outcomeExisting outcome = iota
	outcomeRepaired
	outcomeCopied
)

// Backup returns the BACKUP file derived from a TRACK file, creating it when
// absent. More than one existing BACKUP file for the source is reported as
// ErrConsistency and left untouched.
func (t *Transferer) Backup(ctx context.Context, file *store.File) (*store.File, error) {
	if file == nil {
		return nil, services.Wrap(services.ErrValidation, "transfer", "backup", "file is required", nil)
	}
	capture, err := t.store.GetCapture(ctx, file.CaptureID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transfer", "load capture", file.CaptureID, err)
	}
	if capture == nil {
		return nil, services.Wrap(services.ErrNotFound, "transfer", "load capture", file.CaptureID, nil)
	}
	backup, _, err := t.backup(ctx, capture, file)
	return backup, err
}

func (t *Transferer) backup(ctx context.Context, capture *store.Capture, file *store.File) (*store.File, outcome, error) {
	if file.Method != store.MethodTrack {
		return nil, 0, services.Wrap(services.ErrValidation, "transfer", "backup", fmt.Sprintf("file %s is %s, not TRACK", file.ID, file.Method), nil)
	}
	logger := logging.WithContext(services.WithCaptureID(ctx, capture.MainID), t.logger).
		With(logging.String("band", file.SubID))

	existing, err := t.existingBackup(ctx, file)
	if err != nil || existing != nil {
		return existing, outcomeExisting, err
	}

	dest := t.Destination(capture, file)
	if repaired, err := t.reattach(ctx, file, dest); err != nil || repaired != nil {
		if repaired != nil {
			logger.Info("backup lineage repaired",
				logging.String("storage_path", dest),
				logging.String(logging.FieldEventType, "backup_relinked"),
			)
		}
		return repaired, outcomeRepaired, err
	}

	if err := t.store.UpdateFileStatus(ctx, file.ID, store.FileStoring, ""); err != nil {
		return nil, 0, services.Wrap(services.ErrTransient, "transfer", "mark storing", file.ID, err)
	}

	copied, err := t.copyWithRetry(ctx, logger, file.SourcePath, dest)
	if err != nil {
		if markErr := t.store.UpdateFileStatus(context.WithoutCancel(ctx), file.ID, store.FileStorageFailed, ""); markErr != nil {
			logger.Warn("failed to mark file storage_failed", logging.Error(markErr))
		}
		return nil, 0, services.Wrap(services.ErrTransfer, "transfer", "copy", fmt.Sprintf("%s -> %s", file.SourcePath, dest), err)
	}

	backup := &store.File{
		CaptureID:          file.CaptureID,
		SubID:              file.SubID,
		Format:             file.Format,
		Method:             store.MethodBackup,
		SourcePath:         file.SourcePath,
		StoragePath:        dest,
		RadiometricMeasure: file.RadiometricMeasure,
		AtmosphericLevel:   file.AtmosphericLevel,
		Status:             store.FileStored,
	}
	var raced *store.File
	err = t.store.WithTx(ctx, func(s *store.Session) error {
		derived, err := s.DerivedFiles(ctx, file.ID, store.MethodBackup)
		if err != nil {
			return err
		}
		if len(derived) > 0 {
			raced = derived[0]
			return nil
		}
		if _, err := s.InsertFile(ctx, backup, file.ID); err != nil {
			return err
		}
		return s.UpdateFileStatus(ctx, file.ID, store.FileStored, dest)
	})
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransient, "transfer", "record backup", dest, err)
	}
	if raced != nil {
		return raced, outcomeExisting, nil
	}

	t.metrics.FileBackedUp(capture.Platform)
	result, event := outcomeCopied, "file_backed_up"
	if !copied {
		result, event = outcomeRepaired, "backup_row_repaired"
	}
	logger.Info("file backed up",
		logging.String("storage_path", dest),
		logging.Bool("copied", copied),
		logging.String(logging.FieldEventType, event),
	)
	return backup, result, nil
}

func (t *Transferer) existingBackup(ctx context.Context, file *store.File) (*store.File, error) {
	derived, err := t.store.DerivedFiles(ctx, file.ID, store.MethodBackup)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transfer", "lookup backups", file.ID, err)
	}
	switch len(derived) {
	case 0:
		return nil, nil
	case 1:
		return derived[0], nil
	default:
		ids := make([]string, len(derived))
		for i, d := range derived {
			ids[i] = d.ID
		}
		return nil, services.Wrap(services.ErrConsistency, "transfer", "lookup backups",
			fmt.Sprintf("track file %s has %d backups %v", file.ID, len(derived), ids), nil)
	}
}

// reattach links a BACKUP row that lost its source edge, as happens after a
// forced re-track, instead of inserting a second row for the same object.
func (t *Transferer) reattach(ctx context.Context, file *store.File, dest string) (*store.File, error) {
	var repaired *store.File
	err := t.store.WithTx(ctx, func(s *store.Session) error {
		orphans, err := s.OrphanedFiles(ctx, file.CaptureID, file.SubID, store.MethodBackup)
		if err != nil {
			return err
		}
		var matches []*store.File
		for _, orphan := range orphans {
			if orphan.StoragePath == dest {
				matches = append(matches, orphan)
			}
		}
		switch len(matches) {
		case 0:
			return nil
		case 1:
		default:
			return services.Wrap(services.ErrConsistency, "transfer", "reattach", fmt.Sprintf("%d unlinked backups at %s", len(matches), dest), nil)
		}
		if err := s.AddFileSource(ctx, matches[0].ID, file.ID); err != nil {
			return err
		}
		if err := s.UpdateFileStatus(ctx, file.ID, store.FileStored, dest); err != nil {
			return err
		}
		repaired = matches[0]
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrConsistency) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "transfer", "reattach", dest, err)
	}
	return repaired, nil
}

// copyWithRetry copies src to dst unless dst already exists. It reports
// whether a copy happened.
func (t *Transferer) copyWithRetry(ctx context.Context, logger *slog.Logger, src, dst string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.policy.timeout())
	defer cancel()

	attempt := 0
	operation := func() (bool, error) {
		attempt++
		exists, err := t.objects.Exists(ctx, dst)
		if err != nil {
			return false, classify(err)
		}
		if exists {
			return false, nil
		}
		if err := t.objects.Copy(ctx, src, dst); err != nil {
			return false, classify(err)
		}
		return true, nil
	}
	notify := func(err error, wait time.Duration) {
		t.metrics.TransferRetry()
		logging.WarnWithContext(logger, "copy attempt failed; retrying", "transfer_retry",
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.Error(err),
			logging.String(logging.FieldImpact, "transfer delayed"),
			logging.String(logging.FieldErrorHint, "transient storage error; no action needed unless retries exhaust"),
		)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(t.policy.backOff()),
		backoff.WithMaxElapsedTime(t.policy.timeout()),
		backoff.WithNotify(notify),
	)
}

// classify stops retrying on errors a later attempt cannot fix.
func classify(err error) error {
	if services.Retryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

// Summary reports the result of backing up one capture.
type Summary struct {
	Copied   int
	Existing int
	Repaired int
	Failed   int
}

// BackupCapture backs up every TRACK file of a capture. A failing file does
// not stop the others; the joined failures are returned.
func (t *Transferer) BackupCapture(ctx context.Context, capture *store.Capture) (Summary, error) {
	var summary Summary
	files, err := t.store.ListFiles(ctx, store.FileFilter{
		CaptureID: capture.MainID,
		Methods:   []store.ProcessingMethod{store.MethodTrack},
	})
	if err != nil {
		return summary, services.Wrap(services.ErrTransient, "transfer", "list tracked files", capture.MainID, err)
	}
	if len(files) == 0 {
		return summary, services.Wrap(services.ErrNotFound, "transfer", "list tracked files", capture.MainID+" has no tracked files", nil)
	}
	var errs []error
	for _, file := range files {
		_, result, err := t.backup(ctx, capture, file)
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}
		switch result {
		case outcomeCopied:
			summary.Copied++
		case outcomeRepaired:
			summary.Repaired++
		default:
			summary.Existing++
		}
	}
	return summary, errors.Join(errs...)
}
