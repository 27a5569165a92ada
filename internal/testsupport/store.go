package testsupport

import (
	"context"
	"testing"
	"time"

	"earthgazer/internal/config"
	"earthgazer/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewLocation inserts an active location for tests.
func NewLocation(t testing.TB, st *store.Store, name string, lat, lon float64, start, end time.Time) *store.Location {
	t.Helper()

	loc := &store.Location{
		Name:            name,
		Latitude:        lat,
		Longitude:       lon,
		Active:          true,
		MonitoringStart: start,
		MonitoringEnd:   end,
	}
	if err := st.InsertLocation(context.Background(), loc); err != nil {
		t.Fatalf("store.InsertLocation: %v", err)
	}
	return loc
}

// NewCapture inserts a capture covering a one-degree box around the point.
func NewCapture(t testing.TB, st *store.Store, mainID, platform, baseURL string, sensed time.Time, lat, lon float64) *store.Capture {
	t.Helper()

	c := &store.Capture{
		MainID:      mainID,
		Platform:    platform,
		SensingTime: sensed,
		NorthLat:    lat + 0.5,
		SouthLat:    lat - 0.5,
		WestLon:     lon - 0.5,
		EastLon:     lon + 0.5,
		BaseURL:     baseURL,
		Status:      store.CaptureCatalogImported,
	}
	inserted, err := st.InsertCapture(context.Background(), c)
	if err != nil {
		t.Fatalf("store.InsertCapture: %v", err)
	}
	if !inserted {
		t.Fatalf("capture %s already existed", mainID)
	}
	return c
}
