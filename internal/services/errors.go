package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCatalogQuery     = errors.New("catalog query error")
	ErrDuplicateCapture = errors.New("duplicate capture")
	ErrMissingBand      = errors.New("missing band")
	ErrDuplicateBand    = errors.New("duplicate band")
	ErrTransfer         = errors.New("transfer error")
	ErrConsistency      = errors.New("consistency error")
	ErrRaster           = errors.New("raster error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var kinds = []struct {
	marker error
	kind   string
}{
	{ErrCatalogQuery, "catalog_query"},
	{ErrDuplicateCapture, "duplicate_capture"},
	{ErrMissingBand, "missing_band"},
	{ErrDuplicateBand, "duplicate_band"},
	{ErrConsistency, "consistency"},
	{ErrTransfer, "transfer"},
	{ErrRaster, "raster"},
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrTimeout, "timeout"},
	{ErrTransient, "transient"},
}

// Kind returns the short classification persisted alongside failed captures.
// Unmarked errors report "unknown"; nil reports "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range kinds {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return "unknown"
}

// Retryable reports whether an error may succeed on a later attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
