package locations_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"earthgazer/internal/locations"
	"earthgazer/internal/services"
	"earthgazer/internal/testsupport"
)

const sampleCSV = `name,description,latitude,longitude,monitoring_start,monitoring_end,active
popocatepetl,Volcano near Puebla,19.023370,-98.622864,2021-01-01,2021-12-31,
etna,,37.751,14.993,,,false
`

func TestDecodeReadsHeaderMappedRecords(t *testing.T) {
	records, err := locations.Decode(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	popo := records[0]
	if popo.Name != "popocatepetl" || popo.Latitude != 19.023370 || popo.Start != "2021-01-01" || popo.Active != nil {
		t.Fatalf("unexpected first record %+v", popo)
	}
	if records[1].Active == nil || *records[1].Active {
		t.Fatalf("expected etna to be inactive, got %+v", records[1].Active)
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	records, err := locations.Decode(strings.NewReader(""))
	if err != nil || len(records) != 0 {
		t.Fatalf("Decode(empty) = %v, %v", records, err)
	}
}

func TestValidateRejectsBadRecords(t *testing.T) {
	cases := []struct {
		name string
		rec  locations.Record
		want string
	}{
		{"missing name", locations.Record{Latitude: 1, Longitude: 1}, "name is required"},
		{"latitude", locations.Record{Name: "x", Latitude: 91}, "latitude 91"},
		{"longitude", locations.Record{Name: "x", Longitude: -181}, "longitude -181"},
		{"date", locations.Record{Name: "x", Start: "01/02/2021"}, "not a 2006-01-02 date"},
		{"window", locations.Record{Name: "x", Start: "2022-01-01", End: "2021-01-01"}, "before monitoring_start"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLocationAppliesDefaults(t *testing.T) {
	loc, err := locations.Record{Name: " popocatepetl ", Latitude: 19.02, Longitude: -98.62}.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.Name != "popocatepetl" || !loc.Active {
		t.Fatalf("unexpected location %+v", loc)
	}
	if !loc.MonitoringStart.IsZero() || !loc.MonitoringEnd.IsZero() {
		t.Fatal("unset window bounds should be left for the repository defaults")
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"popocatepetl":       "Popocatepetl",
		"mauna_loa":          "Mauna Loa",
		"  piton-de-la  ":    "Piton De La",
		"SANTIAGUITO crater": "Santiaguito Crater",
	}
	for in, want := range cases {
		if got := locations.DisplayName(in); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportSkipsExistingNames(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewLocation(t, st, "etna", 37.751, 14.993, time.Time{}, time.Time{})

	records, err := locations.Decode(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	summary, err := locations.Import(ctx, st, records)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if summary.Added != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	popo, err := st.GetLocation(ctx, "popocatepetl")
	if err != nil || popo == nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if !popo.MonitoringStart.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("monitoring start = %s", popo.MonitoringStart)
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	records := []locations.Record{
		{Name: "good", Latitude: 1, Longitude: 1},
		{Name: "bad", Latitude: 120, Longitude: 1},
		{Name: "good", Latitude: 2, Longitude: 2},
	}
	_, err := locations.Import(ctx, st, records)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 3") || !strings.Contains(err.Error(), "row 4") {
		t.Fatalf("error should name offending rows: %v", err)
	}
	all, err := st.ListLocations(ctx, false)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected nothing imported, got %d locations", len(all))
	}
}

func TestAddRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	rec := locations.Record{Name: "popocatepetl", Latitude: 19.02, Longitude: -98.62}
	if _, err := locations.Add(ctx, st, rec); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := locations.Add(ctx, st, rec); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second Add error = %v", err)
	}
}
