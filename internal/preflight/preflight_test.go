package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"earthgazer/internal/platform"
	"earthgazer/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckPlatforms(t *testing.T) {
	reg, err := platform.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if result := CheckPlatforms(reg, []string{"LANDSAT_8"}); !result.Passed || result.Detail != "LANDSAT_8" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result := CheckPlatforms(reg, []string{"LANDSAT_9"}); result.Passed {
		t.Fatal("expected unknown platform to fail")
	}
}

func TestCheckCatalog(t *testing.T) {
	cat := testsupport.NewFakeCatalog()
	if result := CheckCatalog(context.Background(), cat); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	cat.Fail("SELECT 1", errors.New("403 billing disabled"))
	result := CheckCatalog(context.Background(), cat)
	if result.Passed || result.Detail != "403 billing disabled" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunAllPassesForHealthySetup(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackupBase("gs://earthgazer-backup"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	reg, err := platform.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	results := RunAll(context.Background(), Targets{
		Config:   cfg,
		Store:    testsupport.MustOpenStore(t, cfg),
		Objects:  testsupport.NewMemoryStore(),
		Catalog:  testsupport.NewFakeCatalog(),
		Registry: reg,
	})
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if len(results) != 7 {
		t.Fatalf("expected 7 checks, got %d", len(results))
	}
}

func TestRunAllReportsMissingDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), Targets{Config: cfg})
	if failed := Failed(results); len(failed) != 2 {
		t.Fatalf("expected both directories to fail before creation, got %+v", results)
	}
}
