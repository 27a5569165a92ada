package testsupport

import (
	"context"
	"strings"
	"sync"
	"time"

	"earthgazer/internal/catalog"
)

// FakeCatalog is a scripted catalog.Client. Responses are selected by the
// first registered substring found in the statement's String form, which
// lists parameters as "-- @name = value" lines.
type FakeCatalog struct {
	mu        sync.Mutex
	responses []fakeResponse
	queries   []string
}

type fakeResponse struct {
	match string
	rows  []catalog.Row
	err   error
}

// NewFakeCatalog returns a catalog that answers every query with no rows.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{}
}

// Respond answers queries containing match with rows.
func (f *FakeCatalog) Respond(match string, rows ...catalog.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{match: match, rows: rows})
}

// Fail answers queries containing match with err.
func (f *FakeCatalog) Fail(match string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{match: match, err: err})
}

// Queries returns the statements received so far.
func (f *FakeCatalog) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *FakeCatalog) Query(ctx context.Context, stmt catalog.Statement) ([]catalog.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := stmt.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	for _, resp := range f.responses {
		if strings.Contains(text, resp.match) {
			if resp.err != nil {
				return nil, resp.err
			}
			rows := make([]catalog.Row, len(resp.rows))
			for i, row := range resp.rows {
				clone := make(catalog.Row, len(row))
				for k, v := range row {
					clone[k] = v
				}
				rows[i] = clone
			}
			return rows, nil
		}
	}
	return nil, nil
}

// LandsatRow builds a catalog row shaped like the Landsat 8 index for a scene
// whose footprint covers the point.
func LandsatRow(mainID string, sensed time.Time, lat, lon float64) catalog.Row {
	return catalog.Row{
		"main_id":      mainID,
		"secondary_id": mainID,
		"mission_id":   "LANDSAT_8",
		"sensing_time": sensed,
		"cloud_cover":  12.5,
		"north_lat":    lat + 0.9,
		"south_lat":    lat - 0.9,
		"west_lon":     lon - 0.9,
		"east_lon":     lon + 0.9,
		"base_url":     LandsatBaseURL(mainID),
		"mgrs_tile":    nil,
		"wrs_path":     int64(25),
		"wrs_row":      int64(47),
		"data_type":    "L1TP",
	}
}

// LandsatBaseURL returns the public bucket prefix used by LandsatRow.
func LandsatBaseURL(mainID string) string {
	return "gs://gcp-public-data-landsat/LC08/01/025/047/" + mainID
}
