package testsupport

import (
	"path/filepath"
	"testing"

	"earthgazer/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Storage bases point at file:// URLs under the temp root so tests never need
// cloud credentials.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.URL = filepath.Join(base, "data", "earthgazer.db")
	cfgVal.Storage.BackupBase = "file://" + filepath.ToSlash(filepath.Join(base, "bucket", "backup"))
	cfgVal.Storage.CompositeBase = "file://" + filepath.ToSlash(filepath.Join(base, "bucket", "composites"))
	cfgVal.Transfer.InitialDelaySeconds = 0.001
	cfgVal.Transfer.MaxDelaySeconds = 0.01
	cfgVal.Transfer.TimeoutSeconds = 2
	cfgVal.Pipeline.Workers = 4

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackupBase overrides the backup destination URL.
func WithBackupBase(base string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.BackupBase = base
	}
}

// WithCompositeBase overrides the composite destination URL.
func WithCompositeBase(base string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.CompositeBase = base
	}
}

// WithWorkers overrides the pipeline worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
	}
}

// WithCompositeWorkers overrides how many captures assemble composites at once.
func WithCompositeWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.CompositeWorkers = n
	}
}

// WithOutputFormat overrides the composite encoding.
func WithOutputFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Composite.OutputFormat = format
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
