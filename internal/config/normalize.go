package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	c.normalizeDevice()
	c.normalizeFlow()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("FACEGATE_PORT"); ok && strings.TrimSpace(value) != "" {
		c.Device.Port = value
		c.Device.AutoDetect = false
	}
	if value, ok := os.LookupEnv("FACEGATE_FLOW_MODE"); ok && strings.TrimSpace(value) != "" {
		c.Flow.Mode = value
	}
	if value, ok := os.LookupEnv("FACEGATE_DRIVER"); ok && strings.TrimSpace(value) != "" {
		c.Device.Driver = value
	}
}

func (c *Config) normalizeDevice() {
	c.Device.Driver = strings.ToLower(strings.TrimSpace(c.Device.Driver))
	if c.Device.Driver == "" {
		c.Device.Driver = defaultDriver
	}
	c.Device.Port = strings.TrimSpace(c.Device.Port)
	c.Device.SerialType = strings.ToLower(strings.TrimSpace(c.Device.SerialType))
	if c.Device.SerialType == "" {
		c.Device.SerialType = defaultSerialType
	}
	vendors := make([]string, 0, len(c.Device.VendorIDs))
	for _, id := range c.Device.VendorIDs {
		id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
		if id != "" {
			vendors = append(vendors, id)
		}
	}
	c.Device.VendorIDs = vendors
}

func (c *Config) normalizeFlow() {
	c.Flow.Mode = strings.ToLower(strings.TrimSpace(c.Flow.Mode))
	if c.Flow.Mode == "" {
		c.Flow.Mode = defaultFlowMode
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DatabaseFile, err = c.dataPath(c.Paths.DatabaseFile, defaultDatabaseName); err != nil {
		return fmt.Errorf("paths.database_file: %w", err)
	}
	if c.Paths.JournalFile, err = c.dataPath(c.Paths.JournalFile, defaultJournalName); err != nil {
		return fmt.Errorf("paths.journal_file: %w", err)
	}
	if c.Paths.HostKeyFile, err = c.dataPath(c.Paths.HostKeyFile, defaultHostKeyName); err != nil {
		return fmt.Errorf("paths.host_key_file: %w", err)
	}
	if c.Device.LockDir, err = c.dataPath(c.Device.LockDir, defaultLockDirName); err != nil {
		return fmt.Errorf("device.lock_dir: %w", err)
	}
	return nil
}

// dataPath resolves value relative to the data directory, falling back to name.
func (c *Config) dataPath(value, name string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return filepath.Join(c.Paths.DataDir, name), nil
	}
	if !strings.HasPrefix(value, "~") && !filepath.IsAbs(value) {
		value = filepath.Join(c.Paths.DataDir, value)
	}
	return expandPath(value)
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
