package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"earthgazer/internal/config"
	"earthgazer/internal/logging"
	"earthgazer/internal/metrics"
	"earthgazer/internal/pipeline"
	"earthgazer/internal/platform"
	"earthgazer/internal/services"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
	"earthgazer/internal/testsupport"
)

const (
	popoLat = 19.023370
	popoLon = -98.622864
	sceneID = "LC08_L1TP_025047_20210615_20210622_01_T1"
)

type harness struct {
	cfg  *config.Config
	st   *store.Store
	mem  *testsupport.MemoryStore
	cat  *testsupport.FakeCatalog
	reg  *platform.Registry
	pipe *pipeline.Pipeline
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{
		testsupport.WithBackupBase("gs://earthgazer-backup"),
		testsupport.WithCompositeBase("gs://earthgazer-composites"),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Metrics.TextfilePath = filepath.Join(testsupport.BaseDir(cfg), "earthgazer.prom")
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := platform.Builtin()
	if err != nil {
		t.Fatalf("platform.Builtin: %v", err)
	}
	h := &harness{
		cfg: cfg,
		st:  st,
		mem: testsupport.NewMemoryStore(),
		cat: testsupport.NewFakeCatalog(),
		reg: reg,
	}
	h.pipe = h.pipelineWith(h.mem)
	return h
}

// pipelineWith builds a pipeline over the harness state that reaches objects
// through the given store.
func (h *harness) pipelineWith(objects storage.ObjectStore) *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Config:   h.cfg,
		Store:    h.st,
		Catalog:  h.cat,
		Objects:  objects,
		Registry: h.reg,
		Metrics:  metrics.New(),
		Logger:   logging.NewNop(),
	})
}

// downloadGauge records the peak number of concurrent downloads.
type downloadGauge struct {
	*testsupport.MemoryStore
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (g *downloadGauge) Download(ctx context.Context, url, localPath string) error {
	g.mu.Lock()
	g.inFlight++
	g.peak = max(g.peak, g.inFlight)
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()
	time.Sleep(5 * time.Millisecond)
	return g.MemoryStore.Download(ctx, url, localPath)
}

func (g *downloadGauge) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// seedScenes stores n Landsat scenes and their catalog_imported captures.
func (h *harness) seedScenes(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("LC08_SCENE_%02d", i)
		base := testsupport.LandsatBaseURL(id)
		testsupport.SeedLandsatScene(h.mem, base, id, 2, 2)
		testsupport.NewCapture(t, h.st, id, "LANDSAT_8", base, time.Date(2021, 1, 1+i, 0, 0, 0, 0, time.UTC), popoLat, popoLon)
	}
}

func (h *harness) filesByMethod(t *testing.T, method store.ProcessingMethod) []*store.File {
	t.Helper()
	files, err := h.st.ListFiles(context.Background(), store.FileFilter{
		CaptureID: sceneID,
		Methods:   []store.ProcessingMethod{method},
	})
	if err != nil {
		t.Fatalf("ListFiles(%s): %v", method, err)
	}
	return files
}

func (h *harness) status(t *testing.T, mainID string) store.CaptureStatus {
	t.Helper()
	c, err := h.st.GetCapture(context.Background(), mainID)
	if err != nil || c == nil {
		t.Fatalf("GetCapture(%s): %v", mainID, err)
	}
	return c.Status
}

func TestPopocatepetlEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testsupport.NewLocation(t, h.st, "Popocatepetl", popoLat, popoLon,
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	h.cat.Respond("landsat_index", testsupport.LandsatRow(sceneID, time.Date(2021, 6, 15, 16, 50, 37, 0, time.UTC), popoLat, popoLon))
	testsupport.SeedLandsatScene(h.mem, testsupport.LandsatBaseURL(sceneID), sceneID, 8, 8)

	if _, err := h.pipe.Ingest(ctx); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	captures, _ := h.st.ListCaptures(ctx, store.CaptureFilter{})
	if len(captures) != 1 || captures[0].Status != store.CaptureCatalogImported {
		t.Fatalf("after ingest: %d captures, want one catalog_imported", len(captures))
	}

	if _, err := h.pipe.Process(ctx, pipeline.Stages{Track: true}); err != nil {
		t.Fatalf("track: %v", err)
	}
	tracked := h.filesByMethod(t, store.MethodTrack)
	if len(tracked) != 6 {
		t.Fatalf("after tracking: %d TRACK files, want 6", len(tracked))
	}
	for i, band := range testsupport.LandsatBands {
		if tracked[i].SubID != band || tracked[i].Status != store.FileFound {
			t.Fatalf("TRACK file %d = %s/%s, want %s/found", i, tracked[i].SubID, tracked[i].Status, band)
		}
	}
	if s := h.status(t, sceneID); s != store.CaptureTracked {
		t.Fatalf("after tracking: status %s", s)
	}

	if _, err := h.pipe.Process(ctx, pipeline.Stages{Backup: true}); err != nil {
		t.Fatalf("backup: %v", err)
	}
	backups := h.filesByMethod(t, store.MethodBackup)
	if len(backups) != 6 {
		t.Fatalf("after transfer: %d BACKUP files, want 6", len(backups))
	}
	trackIDs := make(map[string]bool)
	for _, f := range h.filesByMethod(t, store.MethodTrack) {
		trackIDs[f.ID] = true
	}
	for _, b := range backups {
		sources, err := h.st.SourceFiles(ctx, b.ID)
		if err != nil || len(sources) != 1 || !trackIDs[sources[0].ID] {
			t.Fatalf("BACKUP %s lineage = %v (%v), want one TRACK source", b.SubID, sources, err)
		}
	}
	if s := h.status(t, sceneID); s != store.CaptureBackedUp {
		t.Fatalf("after transfer: status %s", s)
	}

	if _, err := h.pipe.Process(ctx, pipeline.Stages{Composite: true, Composites: []string{"rgb"}}); err != nil {
		t.Fatalf("composite: %v", err)
	}
	composites := h.filesByMethod(t, store.MethodComposite)
	if len(composites) != 1 {
		t.Fatalf("after assembly: %d COMPOSITE files, want 1", len(composites))
	}
	sources, err := h.st.SourceFiles(ctx, composites[0].ID)
	if err != nil || len(sources) != 3 {
		t.Fatalf("composite lineage = %d edges (%v), want 3", len(sources), err)
	}
	if s := h.status(t, sceneID); s != store.CaptureCompositeGenerated {
		t.Fatalf("after assembly: status %s", s)
	}
	if _, err := os.Stat(h.cfg.Metrics.TextfilePath); err != nil {
		t.Fatalf("expected metrics textfile: %v", err)
	}

	copies := h.mem.CopyCalls()
	report, err := h.pipe.Run(ctx, pipeline.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Ingest.Inserted != 0 || report.Pass.Captures != 0 {
		t.Fatalf("re-run should be a no-op, got %+v", report)
	}
	if h.mem.CopyCalls() != copies {
		t.Fatal("re-run copied objects again")
	}
}

func TestRunProcessesCapturesConcurrently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testsupport.WithWorkers(3))
	h.seedScenes(t, 5)

	report, err := h.pipe.Process(ctx, pipeline.Stages{Track: true, Backup: true, Composite: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Captures != 5 || report.Tracked != 5 || report.BackedUp != 5 || report.Composited != 5 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.FilesCopied != 30 {
		t.Fatalf("files copied = %d, want 30", report.FilesCopied)
	}
}

func TestCompositeBuildsAreBounded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testsupport.WithWorkers(4), testsupport.WithCompositeWorkers(2))
	h.seedScenes(t, 6)
	if _, err := h.pipe.Process(ctx, pipeline.Stages{Track: true, Backup: true}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	gauge := &downloadGauge{MemoryStore: h.mem}
	report, err := h.pipelineWith(gauge).Process(ctx, pipeline.Stages{Composite: true, Composites: []string{"rgb"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Composited != 6 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if peak := gauge.Peak(); peak < 1 || peak > 2 {
		t.Fatalf("peak concurrent composite downloads = %d, want at most 2", peak)
	}
}

func TestCompositeBuildsDefaultToOneAtATime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testsupport.WithWorkers(4))
	h.seedScenes(t, 4)
	if _, err := h.pipe.Process(ctx, pipeline.Stages{Track: true, Backup: true}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	gauge := &downloadGauge{MemoryStore: h.mem}
	report, err := h.pipelineWith(gauge).Process(ctx, pipeline.Stages{Composite: true, Composites: []string{"rgb"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Composited != 4 || gauge.Peak() != 1 {
		t.Fatalf("composited %d with peak %d concurrent downloads, want 4 built one at a time", report.Composited, gauge.Peak())
	}
}

func TestEmptyListingWaitsForAssets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := testsupport.LandsatBaseURL(sceneID)
	testsupport.NewCapture(t, h.st, sceneID, "LANDSAT_8", base, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), popoLat, popoLon)

	report, err := h.pipe.Process(ctx, pipeline.Stages{Track: true, Backup: true, Composite: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Deferred != 1 || report.Failed != 0 || report.Tracked != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if s := h.status(t, sceneID); s != store.CaptureCatalogImported {
		t.Fatalf("capture without assets = %s, want catalog_imported", s)
	}

	testsupport.SeedLandsatScene(h.mem, base, sceneID, 2, 2)
	report, err = h.pipe.Process(ctx, pipeline.Stages{Track: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Tracked != 1 || report.FilesTracked != 6 || report.Deferred != 0 {
		t.Fatalf("unexpected report once assets appear %+v", report)
	}
}

func TestUndecodableCompositesLeaveCaptureBackedUp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	const s2 = "S2A_MSIL1C_20210615T165851_N0300_R069_T14QNG_20210615T204012"
	testsupport.NewCapture(t, h.st, s2, "SENTINEL_2", "gs://gcp-public-data-sentinel-2/tiles/14/Q/NG/"+s2+".SAFE", time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), popoLat, popoLon)
	for _, band := range []string{"B02", "B03", "B04"} {
		path := "gs://earthgazer-backup/SENTINEL_2/" + s2 + "/" + band + ".jp2"
		if _, err := h.st.InsertFile(ctx, &store.File{
			CaptureID:   s2,
			SubID:       band,
			Format:      "jp2",
			Method:      store.MethodBackup,
			SourcePath:  path,
			StoragePath: path,
			Status:      store.FileStored,
		}); err != nil {
			t.Fatalf("InsertFile %s: %v", band, err)
		}
	}
	if err := h.st.SetCaptureStatus(ctx, s2, store.CaptureBackedUp); err != nil {
		t.Fatalf("SetCaptureStatus: %v", err)
	}

	report, err := h.pipe.Process(ctx, pipeline.Stages{Composite: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Failed != 0 || report.Composited != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if s := h.status(t, s2); s != store.CaptureBackedUp {
		t.Fatalf("status = %s, want backed_up", s)
	}
}

func TestTrackingFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := testsupport.LandsatBaseURL(sceneID)
	testsupport.SeedLandsatScene(h.mem, base, sceneID, 2, 2)
	testsupport.NewCapture(t, h.st, sceneID, "LANDSAT_8", base, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), popoLat, popoLon)
	testsupport.NewCapture(t, h.st, "LC09_UNKNOWN", "LANDSAT_9", testsupport.LandsatBaseURL("LC09_UNKNOWN"), time.Date(2021, 6, 16, 0, 0, 0, 0, time.UTC), popoLat, popoLon)

	report, err := h.pipe.Process(ctx, pipeline.Stages{Track: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Tracked != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	broken, _ := h.st.GetCapture(ctx, "LC09_UNKNOWN")
	if broken.Status != store.CaptureTrackingError || broken.ErrorKind != "configuration" || broken.ErrorMessage == "" {
		t.Fatalf("unknown-platform capture = %s/%s/%q", broken.Status, broken.ErrorKind, broken.ErrorMessage)
	}
	if s := h.status(t, sceneID); s != store.CaptureTracked {
		t.Fatalf("healthy capture status = %s", s)
	}

	again, err := h.pipe.Process(ctx, pipeline.Stages{Track: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if again.Captures != 0 {
		t.Fatalf("error states must not be retried automatically, got %+v", again)
	}
}

func TestProcessResetsStuckCaptures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := testsupport.LandsatBaseURL(sceneID)
	testsupport.SeedLandsatScene(h.mem, base, sceneID, 2, 2)
	testsupport.NewCapture(t, h.st, sceneID, "LANDSAT_8", base, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), popoLat, popoLon)
	if err := h.st.SetCaptureStatus(ctx, sceneID, store.CaptureTracking); err != nil {
		t.Fatalf("SetCaptureStatus: %v", err)
	}

	report, err := h.pipe.Process(ctx, pipeline.Stages{Track: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Tracked != 1 {
		t.Fatalf("expected the interrupted capture to be tracked, got %+v", report)
	}
}

func TestIngestIsolatesLocationFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.Platforms.Monitored = []string{"LANDSAT_8"}
	testsupport.NewLocation(t, h.st, "Broken", 10, 10, store.DefaultMonitoringStart, store.DefaultMonitoringEnd)
	testsupport.NewLocation(t, h.st, "Popocatepetl", popoLat, popoLon, store.DefaultMonitoringStart, store.DefaultMonitoringEnd)
	h.cat.Fail("-- @lat = 10\n", errors.New("backend unavailable"))
	h.cat.Respond("landsat_index", testsupport.LandsatRow(sceneID, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), popoLat, popoLon))

	report, err := h.pipe.Ingest(ctx)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Attempts != 2 || report.Failures != 1 || report.Inserted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestIngestFailsWhenCatalogUnreachable(t *testing.T) {
	h := newHarness(t)
	testsupport.NewLocation(t, h.st, "Popocatepetl", popoLat, popoLon, store.DefaultMonitoringStart, store.DefaultMonitoringEnd)
	h.cat.Fail("SELECT", errors.New("dial tcp: connection refused"))

	_, err := h.pipe.Ingest(context.Background())
	if !errors.Is(err, services.ErrCatalogQuery) {
		t.Fatalf("expected catalog query error, got %v", err)
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "earthgazer.lock")
	first, err := pipeline.AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := pipeline.AcquireLock(path); !errors.Is(err, pipeline.ErrLocked) {
		t.Fatalf("second AcquireLock error = %v, want ErrLocked", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := pipeline.AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	again.Release()
}
