package store_test

import (
	"context"
	"testing"
	"time"

	"earthgazer/internal/store"
	"earthgazer/internal/testsupport"
)

func TestInsertCaptureIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cloud := 12.5
	c := &store.Capture{
		MainID:      "LC08_L1TP_025047_20210615_20210622_02_T1",
		Platform:    "LANDSAT_8",
		SensingTime: time.Date(2021, 6, 15, 16, 50, 0, 0, time.UTC),
		NorthLat:    20, SouthLat: 18, WestLon: -99.5, EastLon: -97.5,
		CloudCover: &cloud,
		BaseURL:    "gs://gcp-public-data-landsat/LC08/01/025/047/LC08_L1TP_025047_20210615_20210622_02_T1",
		WRSPath:    "25",
		WRSRow:     "47",
	}
	inserted, err := st.InsertCapture(ctx, c)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	again := *c
	inserted, err = st.InsertCapture(ctx, &again)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate main_id to be skipped")
	}

	got, err := st.GetCapture(ctx, c.MainID)
	if err != nil || got == nil {
		t.Fatalf("GetCapture: %v %v", got, err)
	}
	if got.Status != store.CaptureCatalogImported {
		t.Fatalf("unexpected status %q", got.Status)
	}
	if got.CloudCover == nil || *got.CloudCover != cloud {
		t.Fatalf("unexpected cloud cover %v", got.CloudCover)
	}
	if !got.SensingTime.Equal(c.SensingTime) {
		t.Fatalf("sensing time mismatch: %v vs %v", got.SensingTime, c.SensingTime)
	}
	if got.MGRSTile != "" || got.WRSRow != "47" {
		t.Fatalf("unexpected supplemental fields: %+v", got)
	}
}

func TestLatestSensingTimeUsesFootprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	june := time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)
	july := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	testsupport.NewCapture(t, st, "A", "LANDSAT_8", "gs://b/a", june, 19, -98.6)
	testsupport.NewCapture(t, st, "B", "LANDSAT_8", "gs://b/b", july, 40, 10)
	testsupport.NewCapture(t, st, "C", "SENTINEL_2", "gs://b/c", july, 19, -98.6)

	latest, ok, err := st.LatestSensingTime(ctx, "LANDSAT_8", 19.02, -98.62)
	if err != nil {
		t.Fatalf("LatestSensingTime: %v", err)
	}
	if !ok || !latest.Equal(june) {
		t.Fatalf("expected june capture, got %v ok=%v", latest, ok)
	}

	if _, ok, err := st.LatestSensingTime(ctx, "LANDSAT_8", -40, 170); err != nil || ok {
		t.Fatalf("expected no capture, got ok=%v err=%v", ok, err)
	}
}

func TestListCapturesFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"one", "two", "three"} {
		testsupport.NewCapture(t, st, id, "LANDSAT_8", "gs://b/"+id, base.AddDate(0, i, 0), 0, 0)
	}
	if err := st.SetCaptureStatus(ctx, "two", store.CaptureTracked); err != nil {
		t.Fatalf("SetCaptureStatus: %v", err)
	}

	tracked, err := st.ListCaptures(ctx, store.CaptureFilter{Statuses: []store.CaptureStatus{store.CaptureTracked}})
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(tracked) != 1 || tracked[0].MainID != "two" {
		t.Fatalf("unexpected tracked captures: %+v", tracked)
	}

	ranged, err := st.ListCaptures(ctx, store.CaptureFilter{SensedFrom: base.AddDate(0, 1, 0)})
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(ranged) != 2 || ranged[0].MainID != "two" || ranged[1].MainID != "three" {
		t.Fatalf("unexpected ranged captures: %+v", ranged)
	}
}

func TestTransitionsAndRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sensed := time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)
	testsupport.NewCapture(t, st, "stuck", "LANDSAT_8", "gs://b/s", sensed, 0, 0)
	testsupport.NewCapture(t, st, "broken", "LANDSAT_8", "gs://b/x", sensed, 0, 0)

	moved, err := st.TransitionCapture(ctx, "stuck", store.CaptureTransferring, store.CaptureTracked)
	if err != nil {
		t.Fatalf("TransitionCapture: %v", err)
	}
	if moved {
		t.Fatal("transition should not apply from catalog_imported")
	}
	if err := st.SetCaptureStatus(ctx, "stuck", store.CaptureTransferring); err != nil {
		t.Fatalf("SetCaptureStatus: %v", err)
	}
	if err := st.FailCapture(ctx, "broken", store.CaptureCompositeError, "missing_band", "B4 absent"); err != nil {
		t.Fatalf("FailCapture: %v", err)
	}
	if err := st.FailCapture(ctx, "broken", store.CaptureTracked, "x", "y"); err == nil {
		t.Fatal("expected non-error status to be rejected")
	}

	reset, err := st.ResetStuckCaptures(ctx)
	if err != nil || reset != 1 {
		t.Fatalf("ResetStuckCaptures: n=%d err=%v", reset, err)
	}
	stuck, _ := st.GetCapture(ctx, "stuck")
	if stuck.Status != store.CaptureTracked {
		t.Fatalf("expected stuck capture back at tracked, got %q", stuck.Status)
	}

	broken, _ := st.GetCapture(ctx, "broken")
	if broken.ErrorKind != "missing_band" || broken.ErrorMessage != "B4 absent" {
		t.Fatalf("expected error detail, got %+v", broken)
	}
	retried, err := st.RetryCaptures(ctx, "broken")
	if err != nil || retried != 1 {
		t.Fatalf("RetryCaptures: n=%d err=%v", retried, err)
	}
	broken, _ = st.GetCapture(ctx, "broken")
	if broken.Status != store.CaptureBackedUp || broken.ErrorKind != "" {
		t.Fatalf("unexpected retried capture: %+v", broken)
	}

	counts, err := st.CaptureStatusCounts(ctx)
	if err != nil {
		t.Fatalf("CaptureStatusCounts: %v", err)
	}
	if counts[store.CaptureTracked] != 1 || counts[store.CaptureBackedUp] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
