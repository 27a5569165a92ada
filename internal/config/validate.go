package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateComposite(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver. Set EARTHGAZER_DATABASE_URL or edit the config file")
		}
		return nil
	default:
		return fmt.Errorf("database.driver: unsupported value %q (expected sqlite or postgres)", c.Database.Driver)
	}
}

func (c *Config) validateStorage() error {
	if c.Storage.BackupBase == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/earthgazer/config.toml"
		}
		return fmt.Errorf("storage.backup_base is required. Edit %s (create with 'earthgazer config init')", defaultPath)
	}
	for key, value := range map[string]string{
		"storage.backup_base":    c.Storage.BackupBase,
		"storage.composite_base": c.Storage.CompositeBase,
	} {
		if !strings.HasPrefix(value, "gs://") && !strings.HasPrefix(value, "file://") {
			return fmt.Errorf("%s must be a gs:// or file:// URL, got %q", key, value)
		}
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.InitialDelaySeconds <= 0 {
		return errors.New("transfer.initial_delay_seconds must be positive")
	}
	if c.Transfer.MaxDelaySeconds < c.Transfer.InitialDelaySeconds {
		return errors.New("transfer.max_delay_seconds must be at least transfer.initial_delay_seconds")
	}
	if c.Transfer.Multiplier < 1 {
		return errors.New("transfer.multiplier must be at least 1")
	}
	if c.Transfer.TimeoutSeconds <= 0 {
		return errors.New("transfer.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateComposite() error {
	switch c.Composite.OutputFormat {
	case "tiff", "png":
		return nil
	default:
		return fmt.Errorf("composite.output_format: unsupported value %q (expected tiff or png)", c.Composite.OutputFormat)
	}
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if c.Pipeline.CompositeWorkers <= 0 {
		return errors.New("pipeline.composite_workers must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
