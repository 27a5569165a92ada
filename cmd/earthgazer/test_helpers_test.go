package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"earthgazer/internal/catalog"
	"earthgazer/internal/config"
	"earthgazer/internal/storage"
	"earthgazer/internal/store"
	"earthgazer/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	objects    *testsupport.MemoryStore
	catalog    *testsupport.FakeCatalog
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("EARTHGAZER_DATABASE_URL", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, filepath.Join(base, "data"))

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	env := &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		objects:    testsupport.NewMemoryStore(),
		catalog:    testsupport.NewFakeCatalog(),
		configPath: configPath,
		baseDir:    base,
	}

	prevCatalog, prevObjects := openCatalog, openObjects
	openCatalog = func(context.Context, *config.Config) (catalog.Client, func() error, error) {
		return env.catalog, nil, nil
	}
	openObjects = func(context.Context, *config.Config) (storage.ObjectStore, func() error, error) {
		return env.objects, nil, nil
	}
	t.Cleanup(func() {
		openCatalog, openObjects = prevCatalog, prevObjects
	})

	return env
}

func writeTestConfig(t *testing.T, path, dataDir string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
scratch_dir = %q
log_dir = %q

[storage]
backup_base = "gs://earthgazer-backup"
composite_base = "gs://earthgazer-composites"

[transfer]
initial_delay_seconds = 0.001
max_delay_seconds = 0.01
timeout_seconds = 5

[logging]
level = "error"
`, dataDir, filepath.Join(dataDir, "scratch"), filepath.Join(dataDir, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
