package composite

import (
	"fmt"

	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

// Outcome tags the result of one assembly attempt.
type Outcome int

const (
	// Assembled means the composite file exists, either new or from a
	// previous run.
	Assembled Outcome = iota + 1
	// MissingBand means a required band has no backed-up file.
	MissingBand
	// DuplicateBand means a required band has more than one backed-up file.
	DuplicateBand
)

func (o Outcome) String() string {
	switch o {
	case Assembled:
		return "assembled"
	case MissingBand:
		return "missing_band"
	case DuplicateBand:
		return "duplicate_band"
	default:
		return "unknown"
	}
}

// Result is the outcome of Assemble. File is set when Outcome is Assembled;
// Band names the offending band otherwise.
type Result struct {
	Outcome  Outcome
	File     *store.File
	Band     string
	Existing bool
}

// Err converts a band outcome into the error recorded on the capture. It is
// nil for Assembled.
func (r Result) Err() error {
	switch r.Outcome {
	case MissingBand:
		return services.Wrap(services.ErrMissingBand, "composite", "select bands", fmt.Sprintf("no backed-up file for band %s", r.Band), nil)
	case DuplicateBand:
		return services.Wrap(services.ErrDuplicateBand, "composite", "select bands", fmt.Sprintf("more than one backed-up file for band %s", r.Band), nil)
	default:
		return nil
	}
}
