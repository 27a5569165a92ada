package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"earthgazer/internal/logging"
	"earthgazer/internal/platform"
	"earthgazer/internal/services"
	"earthgazer/internal/store"
	"earthgazer/internal/testsupport"
	"earthgazer/internal/tracking"
	"earthgazer/internal/transfer"
)

const sceneID = "LC08_L1TP_025047_20210615_20210622_01_T1"

type fixture struct {
	st      *store.Store
	mem     *testsupport.MemoryStore
	tracker *tracking.Tracker
	xfer    *transfer.Transferer
	capture *store.Capture
}

var fastPolicy = transfer.Policy{
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
	Timeout:      200 * time.Millisecond,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg, err := platform.Builtin()
	if err != nil {
		t.Fatalf("platform.Builtin: %v", err)
	}
	mem := testsupport.NewMemoryStore()
	base := testsupport.LandsatBaseURL(sceneID)
	testsupport.SeedLandsatScene(mem, base, sceneID, 2, 2)
	capture := testsupport.NewCapture(t, st, sceneID, "LANDSAT_8", base, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), 19.02, -98.62)

	f := &fixture{
		st:      st,
		mem:     mem,
		tracker: tracking.New(st, mem, reg, nil, logging.NewNop()),
		xfer:    transfer.New(st, mem, "gs://earthgazer-backup", fastPolicy, nil, logging.NewNop()),
		capture: capture,
	}
	if _, err := f.tracker.Track(context.Background(), capture, false); err != nil {
		t.Fatalf("Track: %v", err)
	}
	return f
}

func (f *fixture) trackFile(t *testing.T, band string) *store.File {
	t.Helper()
	files, err := f.st.ListFiles(context.Background(), store.FileFilter{
		CaptureID: sceneID,
		Methods:   []store.ProcessingMethod{store.MethodTrack},
		SubID:     band,
	})
	if err != nil || len(files) != 1 {
		t.Fatalf("track file %s: %v (%d rows)", band, err, len(files))
	}
	return files[0]
}

func TestBackupCopiesAndRecordsLineage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B4")

	backup, err := f.xfer.Backup(ctx, src)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	want := "gs://earthgazer-backup/LANDSAT_8/" + sceneID + "/" + sceneID + "_B4.TIF"
	if backup.StoragePath != want {
		t.Fatalf("storage path = %q, want %q", backup.StoragePath, want)
	}
	if backup.Method != store.MethodBackup || backup.Status != store.FileStored {
		t.Fatalf("unexpected backup %+v", backup)
	}
	if _, ok := f.mem.Get(want); !ok {
		t.Fatal("expected object at backup destination")
	}
	sources, err := f.st.SourceFiles(ctx, backup.ID)
	if err != nil || len(sources) != 1 || sources[0].ID != src.ID {
		t.Fatalf("expected single lineage edge to %s, got %v (%v)", src.ID, sources, err)
	}
	refreshed, _ := f.st.GetFile(ctx, src.ID)
	if refreshed.Status != store.FileStored || refreshed.StoragePath != want {
		t.Fatalf("track file not marked stored: %+v", refreshed)
	}
}

func TestBackupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B4")

	first, err := f.xfer.Backup(ctx, src)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	copies := f.mem.CopyCalls()

	second, err := f.xfer.Backup(ctx, src)
	if err != nil {
		t.Fatalf("second Backup: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing backup %s, got %s", first.ID, second.ID)
	}
	if f.mem.CopyCalls() != copies {
		t.Fatalf("second Backup made %d copy calls", f.mem.CopyCalls()-copies)
	}
}

func TestBackupRepairsRowAfterCrash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B3")
	dest := f.xfer.Destination(f.capture, src)
	f.mem.Put(dest, []byte("copied before crash"))

	backup, err := f.xfer.Backup(ctx, src)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if f.mem.CopyCalls() != 0 {
		t.Fatalf("expected no copy when destination exists, got %d", f.mem.CopyCalls())
	}
	if backup.StoragePath != dest {
		t.Fatalf("storage path = %q", backup.StoragePath)
	}
}

func TestBackupReattachesAfterForcedRetrack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.xfer.Backup(ctx, f.trackFile(t, "B2"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if _, err := f.tracker.Track(ctx, f.capture, true); err != nil {
		t.Fatalf("forced Track: %v", err)
	}
	replaced := f.trackFile(t, "B2")

	again, err := f.xfer.Backup(ctx, replaced)
	if err != nil {
		t.Fatalf("Backup after re-track: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected original backup row to be relinked, got new row %s", again.ID)
	}
	if f.mem.CopyCalls() != 1 {
		t.Fatalf("copy calls = %d, want 1", f.mem.CopyCalls())
	}
	backups, _ := f.st.ListFiles(ctx, store.FileFilter{CaptureID: sceneID, Methods: []store.ProcessingMethod{store.MethodBackup}, SubID: "B2"})
	if len(backups) != 1 {
		t.Fatalf("expected one BACKUP row, got %d", len(backups))
	}
}

func TestBackupDetectsDuplicateBackups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B5")
	for i := 0; i < 2; i++ {
		dup := &store.File{
			CaptureID:   sceneID,
			SubID:       "B5",
			Format:      "TIF",
			Method:      store.MethodBackup,
			SourcePath:  src.SourcePath,
			StoragePath: "gs://elsewhere/B5.TIF",
			Status:      store.FileStored,
		}
		if _, err := f.st.InsertFile(ctx, dup, src.ID); err != nil {
			t.Fatalf("InsertFile: %v", err)
		}
	}

	_, err := f.xfer.Backup(ctx, src)
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if f.mem.CopyCalls() != 0 {
		t.Fatal("consistency violations must not trigger copies")
	}
}

func TestBackupRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B6")
	f.mem.FailCopies(src.SourcePath, 2)

	if _, err := f.xfer.Backup(ctx, src); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if f.mem.CopyCalls() != 1 {
		t.Fatalf("copy calls = %d, want 1 successful copy", f.mem.CopyCalls())
	}
}

func TestBackupExhaustedRetriesMarkFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B7")
	f.mem.FailCopies(src.SourcePath, 1_000_000)

	_, err := f.xfer.Backup(ctx, src)
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	refreshed, _ := f.st.GetFile(ctx, src.ID)
	if refreshed.Status != store.FileStorageFailed {
		t.Fatalf("status = %s, want storage_failed", refreshed.Status)
	}
	backups, _ := f.st.DerivedFiles(ctx, src.ID, store.MethodBackup)
	if len(backups) != 0 {
		t.Fatalf("failed transfer must not record a backup, found %d", len(backups))
	}
}

func TestBackupMissingSourceFailsFast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.trackFile(t, "B4")
	f.mem.Delete(src.SourcePath)

	started := time.Now()
	_, err := f.xfer.Backup(ctx, src)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if time.Since(started) > fastPolicy.Timeout {
		t.Fatal("permanent errors should not be retried until the deadline")
	}
}

func TestBackupCaptureSummarizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.xfer.Backup(ctx, f.trackFile(t, "B2")); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	summary, err := f.xfer.BackupCapture(ctx, f.capture)
	if err != nil {
		t.Fatalf("BackupCapture: %v", err)
	}
	if summary.Copied != 5 || summary.Existing != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 5 copied and 1 existing", summary)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transfer.InitialDelaySeconds = 1.5
	cfg.Transfer.TimeoutSeconds = 30
	p := transfer.PolicyFromConfig(cfg.Transfer)
	if p.InitialDelay != 1500*time.Millisecond || p.Timeout != 30*time.Second {
		t.Fatalf("unexpected policy %+v", p)
	}
}
