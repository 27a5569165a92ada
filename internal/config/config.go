package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	ScratchDir string `toml:"scratch_dir"`
	LogDir     string `toml:"log_dir"`
}

// Database selects the relational engine behind the repository.
type Database struct {
	Driver string `toml:"driver"`
	URL    string `toml:"url"`
}

// Google contains credentials and project settings for BigQuery and Cloud Storage.
type Google struct {
	CredentialsFile string `toml:"credentials_file"`
	Project         string `toml:"project"`
	Location        string `toml:"location"`
}

// Storage contains object store destinations. Bases are URLs: gs://bucket/prefix
// routes to Cloud Storage, file:///abs/path routes to the local filesystem.
type Storage struct {
	BackupBase        string  `toml:"backup_base"`
	CompositeBase     string  `toml:"composite_base"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Transfer controls the retry policy applied to asset copies.
type Transfer struct {
	InitialDelaySeconds float64 `toml:"initial_delay_seconds"`
	MaxDelaySeconds     float64 `toml:"max_delay_seconds"`
	Multiplier          float64 `toml:"multiplier"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
}

// Composite controls output of assembled band stacks.
type Composite struct {
	OutputFormat string   `toml:"output_format"`
	Names        []string `toml:"names"`
}

// Pipeline contains concurrency settings for stage drivers.
type Pipeline struct {
	Workers int `toml:"workers"`
	// CompositeWorkers bounds how many captures assemble composites at once;
	// each build holds every input band and the stacked output in memory.
	CompositeWorkers int `toml:"composite_workers"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications configures ntfy run summaries. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Platforms selects which platforms are monitored and where optional
// definition overrides live.
type Platforms struct {
	Monitored       []string `toml:"monitored"`
	DefinitionsFile string   `toml:"definitions_file"`
}

// Config encapsulates all configuration values for earthgazer.
//
// Configuration sections by subsystem:
//   - Paths: data, scratch, and log directories
//   - Database: sqlite or postgres repository
//   - Google: BigQuery catalog and Cloud Storage credentials
//   - Storage: backup and composite destinations plus request limits
//   - Transfer: copy retry policy
//   - Composite: output format and default composite names
//   - Pipeline: worker pool size and composite concurrency
//   - Metrics: Prometheus textfile export
//   - Logging: log format and level
//   - Platforms: monitored platforms and definition overrides
//   - Notifications: ntfy run summaries
type Config struct {
	Paths     Paths     `toml:"paths"`
	Database  Database  `toml:"database"`
	Google    Google    `toml:"google"`
	Storage   Storage   `toml:"storage"`
	Transfer  Transfer  `toml:"transfer"`
	Composite Composite `toml:"composite"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Metrics   Metrics   `toml:"metrics"`
	Logging   Logging   `toml:"logging"`
	Platforms Platforms `toml:"platforms"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/earthgazer/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory is loaded first so environment overrides can live beside
// the project. The returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("earthgazer.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ScratchDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, base := range []string{c.Storage.BackupBase, c.Storage.CompositeBase} {
		if dir, ok := strings.CutPrefix(base, "file://"); ok {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage directory %q: %w", dir, err)
			}
		}
	}
	return nil
}

// DatabasePath returns the sqlite database file, or "" for other drivers.
func (c *Config) DatabasePath() string {
	if c.Database.Driver != DriverSQLite {
		return ""
	}
	return c.Database.URL
}

// LockPath returns the file used to serialize pipeline runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "earthgazer.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
