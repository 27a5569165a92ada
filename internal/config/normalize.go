package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeGoogle(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeComposite()
	if err := c.normalizePlatforms(); err != nil {
		return err
	}
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = filepath.Join(c.Paths.DataDir, "scratch")
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDatabaseDriver
	}
	if value, ok := os.LookupEnv("EARTHGAZER_DATABASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Database.URL = strings.TrimSpace(value)
	}
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.Driver != DriverSQLite {
		return nil
	}
	if c.Database.URL == "" {
		c.Database.URL = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	if c.Database.URL == ":memory:" {
		return nil
	}
	var err error
	if c.Database.URL, err = expandPath(c.Database.URL); err != nil {
		return fmt.Errorf("database.url: %w", err)
	}
	return nil
}

func (c *Config) normalizeGoogle() error {
	if c.Google.CredentialsFile == "" {
		if value, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS"); ok {
			c.Google.CredentialsFile = strings.TrimSpace(value)
		}
	}
	if c.Google.Project == "" {
		if value, ok := os.LookupEnv("EARTHGAZER_GCP_PROJECT"); ok {
			c.Google.Project = strings.TrimSpace(value)
		}
	}
	c.Google.Project = strings.TrimSpace(c.Google.Project)
	c.Google.Location = strings.TrimSpace(c.Google.Location)
	if c.Google.Location == "" {
		c.Google.Location = defaultGoogleLocation
	}
	var err error
	if c.Google.CredentialsFile, err = expandPath(strings.TrimSpace(c.Google.CredentialsFile)); err != nil {
		return fmt.Errorf("google.credentials_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.BackupBase = strings.TrimRight(strings.TrimSpace(c.Storage.BackupBase), "/")
	c.Storage.CompositeBase = strings.TrimRight(strings.TrimSpace(c.Storage.CompositeBase), "/")
	if c.Storage.CompositeBase == "" && c.Storage.BackupBase != "" {
		c.Storage.CompositeBase = c.Storage.BackupBase + "/composites"
	}
	if c.Storage.RequestsPerSecond <= 0 {
		c.Storage.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.Storage.Burst <= 0 {
		c.Storage.Burst = defaultBurst
	}
}

func (c *Config) normalizeComposite() {
	c.Composite.OutputFormat = strings.ToLower(strings.TrimSpace(c.Composite.OutputFormat))
	switch c.Composite.OutputFormat {
	case "":
		c.Composite.OutputFormat = defaultOutputFormat
	case "tif":
		c.Composite.OutputFormat = "tiff"
	}
	names := make([]string, 0, len(c.Composite.Names))
	for _, name := range c.Composite.Names {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	c.Composite.Names = names
}

func (c *Config) normalizePlatforms() error {
	monitored := make([]string, 0, len(c.Platforms.Monitored))
	seen := make(map[string]struct{}, len(c.Platforms.Monitored))
	for _, name := range c.Platforms.Monitored {
		normalized := strings.ToUpper(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		monitored = append(monitored, normalized)
	}
	c.Platforms.Monitored = monitored

	var err error
	if c.Platforms.DefinitionsFile, err = expandPath(strings.TrimSpace(c.Platforms.DefinitionsFile)); err != nil {
		return fmt.Errorf("platforms.definitions_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.TextfilePath, err = expandPath(strings.TrimSpace(c.Metrics.TextfilePath)); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
