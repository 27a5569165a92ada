package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"earthgazer/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("EARTHGAZER_DATABASE_URL", "")

	path := writeConfig(t, `
[storage]
backup_base = "gs://bucket/backup/"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != path || !exists {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}

	wantData := filepath.Join(tempHome, ".local", "share", "earthgazer")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Database.Driver != config.DriverSQLite {
		t.Fatalf("unexpected driver: %q", cfg.Database.Driver)
	}
	if cfg.Database.URL != filepath.Join(wantData, "earthgazer.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Database.URL)
	}
	if cfg.Storage.BackupBase != "gs://bucket/backup" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Storage.BackupBase)
	}
	if cfg.Storage.CompositeBase != "gs://bucket/backup/composites" {
		t.Fatalf("unexpected composite base: %q", cfg.Storage.CompositeBase)
	}
	if cfg.Pipeline.Workers != 10 {
		t.Fatalf("expected 10 workers by default, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.CompositeWorkers != 1 {
		t.Fatalf("expected composites built one at a time by default, got %d", cfg.Pipeline.CompositeWorkers)
	}
	if cfg.Transfer.MaxDelaySeconds != 120 || cfg.Transfer.TimeoutSeconds != 1200 {
		t.Fatalf("unexpected transfer defaults: %+v", cfg.Transfer)
	}
	if len(cfg.Platforms.Monitored) != 2 {
		t.Fatalf("unexpected monitored platforms: %v", cfg.Platforms.Monitored)
	}
}

func TestLoadRequiresBackupBase(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, _, _, err := config.Load(writeConfig(t, "[pipeline]\nworkers = 2\n"))
	if err == nil || !strings.Contains(err.Error(), "storage.backup_base") {
		t.Fatalf("expected backup_base error, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, _, _, err := config.Load(writeConfig(t, "[storage]\nbackup_base = \"gs://b\"\nbogus = 1\n"))
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EARTHGAZER_DATABASE_URL", "postgres://eg@localhost/eg")
	t.Setenv("EARTHGAZER_GCP_PROJECT", "demo-project")

	cfg, _, _, err := config.Load(writeConfig(t, `
[database]
driver = "Postgres"

[storage]
backup_base = "file:///tmp/eg"
`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres || cfg.Database.URL != "postgres://eg@localhost/eg" {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Google.Project != "demo-project" {
		t.Fatalf("expected project from env, got %q", cfg.Google.Project)
	}
	if cfg.DatabasePath() != "" {
		t.Fatalf("expected no sqlite path for postgres, got %q", cfg.DatabasePath())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"storage scheme", func(c *config.Config) { c.Storage.BackupBase = "s3://bucket" }, "gs:// or file://"},
		{"workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"composite workers", func(c *config.Config) { c.Pipeline.CompositeWorkers = 0 }, "pipeline.composite_workers"},
		{"format", func(c *config.Config) { c.Composite.OutputFormat = "jpeg" }, "composite.output_format"},
		{"multiplier", func(c *config.Config) { c.Transfer.Multiplier = 0.5 }, "transfer.multiplier"},
		{"driver", func(c *config.Config) { c.Database.Driver = "mysql" }, "database.driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.BackupBase = "gs://bucket/backup"
			cfg.Storage.CompositeBase = "gs://bucket/composites"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}
