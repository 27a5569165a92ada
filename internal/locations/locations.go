package locations

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jszwec/csvutil"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

// DateLayout is the accepted format for monitoring window bounds.
const DateLayout = "2006-01-02"

// Record is one location as entered by a user.
type Record struct {
	Name        string  `csv:"name" validate:"required,max=128"`
	Description string  `csv:"description,omitempty" validate:"max=512"`
	Latitude    float64 `csv:"latitude" validate:"latitude"`
	Longitude   float64 `csv:"longitude" validate:"longitude"`
	Start       string  `csv:"monitoring_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	End         string  `csv:"monitoring_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Active      *bool   `csv:"active,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges and the monitoring window.
func (r Record) Validate() error {
	if err := recordValidator().Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, describe(fe))
			}
			return services.Wrap(services.ErrValidation, "locations", "validate", strings.Join(problems, "; "), nil)
		}
		return services.Wrap(services.ErrValidation, "locations", "validate", "", err)
	}
	start, end, err := r.window()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return services.Wrap(services.ErrValidation, "locations", "validate", "monitoring_end is before monitoring_start", nil)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", strings.ToLower(fe.Field()))
	case "latitude":
		return fmt.Sprintf("latitude %v is outside [-90, 90]", fe.Value())
	case "longitude":
		return fmt.Sprintf("longitude %v is outside [-180, 180]", fe.Value())
	case "datetime":
		return fmt.Sprintf("%s %q is not a %s date", strings.ToLower(fe.Field()), fe.Value(), DateLayout)
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}
}

func (r Record) window() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if s := strings.TrimSpace(r.Start); s != "" {
		if start, err = time.Parse(DateLayout, s); err != nil {
			return start, end, services.Wrap(services.ErrValidation, "locations", "parse window", "monitoring_start", err)
		}
	}
	if s := strings.TrimSpace(r.End); s != "" {
		if end, err = time.Parse(DateLayout, s); err != nil {
			return start, end, services.Wrap(services.ErrValidation, "locations", "parse window", "monitoring_end", err)
		}
	}
	return start, end, nil
}

// Location converts a validated record into the repository model. Unset
// window bounds fall back to the repository defaults on insert.
func (r Record) Location() (*store.Location, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	start, end, err := r.window()
	if err != nil {
		return nil, err
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &store.Location{
		Name:            strings.TrimSpace(r.Name),
		Description:     strings.TrimSpace(r.Description),
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		Active:          active,
		MonitoringStart: start,
		MonitoringEnd:   end,
	}, nil
}

// Decode reads CSV records. An empty input yields no records.
func Decode(r io.Reader) ([]Record, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "locations", "decode csv", "read header", err)
	}
	var records []Record
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "locations", "decode csv", "", err)
	}
	return records, nil
}

// DisplayName renders a location name for humans: separators become spaces
// and words are title cased.
func DisplayName(name string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(name))
	return cases.Title(language.Und).String(strings.Join(strings.Fields(replaced), " "))
}

// Add validates and stores one location.
func Add(ctx context.Context, st *store.Store, rec Record) (*store.Location, error) {
	loc, err := rec.Location()
	if err != nil {
		return nil, err
	}
	existing, err := st.GetLocation(ctx, loc.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrValidation, "locations", "add", fmt.Sprintf("location %q already exists", loc.Name), nil)
	}
	if err := st.InsertLocation(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// ImportSummary reports the outcome of a bulk import.
type ImportSummary struct {
	Added   int
	Skipped int
}

// Import validates every record and then inserts the ones whose names are
// not already present. Row numbers in errors count the header as row 1.
func Import(ctx context.Context, st *store.Store, records []Record) (ImportSummary, error) {
	var summary ImportSummary
	locs := make([]*store.Location, 0, len(records))
	var errs []error
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		row := i + 2
		loc, err := rec.Location()
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", row, err))
			continue
		}
		if prev, dup := seen[loc.Name]; dup {
			errs = append(errs, fmt.Errorf("row %d: %w", row,
				services.Wrap(services.ErrValidation, "locations", "import", fmt.Sprintf("name %q repeats row %d", loc.Name, prev), nil)))
			continue
		}
		seen[loc.Name] = row
		locs = append(locs, loc)
	}
	if len(errs) > 0 {
		return summary, errors.Join(errs...)
	}

	err := st.WithTx(ctx, func(tx *store.Session) error {
		summary = ImportSummary{}
		for _, loc := range locs {
			existing, err := tx.GetLocation(ctx, loc.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				summary.Skipped++
				continue
			}
			if err := tx.InsertLocation(ctx, loc); err != nil {
				return err
			}
			summary.Added++
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}
	return summary, nil
}
