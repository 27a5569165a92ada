package store

import (
	"context"
	"fmt"
)

type statusTransition struct {
	from CaptureStatus
	to   CaptureStatus
}

// stuckTransitions return in-flight captures to the start of their stage.
var stuckTransitions = []statusTransition{
	{from: CaptureTracking, to: CaptureCatalogImported},
	{from: CaptureTransferring, to: CaptureTracked},
	{from: CaptureAssembling, to: CaptureBackedUp},
}

// retryTransitions re-enter errored captures at the start of the failed stage.
var retryTransitions = []statusTransition{
	{from: CaptureTrackingError, to: CaptureCatalogImported},
	{from: CaptureTransferError, to: CaptureTracked},
	{from: CaptureCompositeError, to: CaptureBackedUp},
}

// ResetStuckCaptures returns captures left in a processing status by an
// interrupted run to the start of their stage.
func (s *Session) ResetStuckCaptures(ctx context.Context) (int64, error) {
	n, err := s.applyTransitions(ctx, stuckTransitions, nil)
	if err != nil {
		return 0, fmt.Errorf("reset stuck captures: %w", err)
	}
	return n, nil
}

// RetryCaptures moves errored captures back to the start of the stage that
// failed. With no IDs every errored capture is retried.
func (s *Session) RetryCaptures(ctx context.Context, mainIDs ...string) (int64, error) {
	n, err := s.applyTransitions(ctx, retryTransitions, mainIDs)
	if err != nil {
		return 0, fmt.Errorf("retry captures: %w", err)
	}
	return n, nil
}

func (s *Session) applyTransitions(ctx context.Context, transitions []statusTransition, mainIDs []string) (int64, error) {
	query := `UPDATE captures SET status = CASE status`
	args := make([]any, 0, len(transitions)*3+len(mainIDs)+1)
	for _, t := range transitions {
		query += ` WHEN ? THEN ?`
		args = append(args, t.from, t.to)
	}
	query += ` ELSE status END, error_kind = NULL, error_message = NULL, updated_at = ?`
	args = append(args, now())
	query += ` WHERE status IN (` + makePlaceholders(len(transitions)) + `)`
	for _, t := range transitions {
		args = append(args, t.from)
	}
	if len(mainIDs) > 0 {
		query += ` AND main_id IN (` + makePlaceholders(len(mainIDs)) + `)`
		for _, id := range mainIDs {
			args = append(args, id)
		}
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
