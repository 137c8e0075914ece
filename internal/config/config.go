package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Serial link types understood by the device drivers.
const (
	SerialTypeUSB  = "usb"
	SerialTypeUART = "uart"
)

// Flow modes. In local mode enrolled users live on the device; in server mode
// the device only extracts templates and matching happens against the local
// template database.
const (
	FlowModeLocal  = "local"
	FlowModeServer = "server"
)

// Device contains configuration for reaching the biometric device.
type Device struct {
	Driver       string   `toml:"driver"`
	Port         string   `toml:"port"`
	SerialType   string   `toml:"serial_type"`
	AutoDetect   bool     `toml:"auto_detect"`
	VendorIDs    []string `toml:"vendor_ids"`
	CameraNumber int      `toml:"camera_number"`
	LockDir      string   `toml:"lock_dir"`
}

// Flow contains configuration for where templates are stored and matched.
type Flow struct {
	Mode string `toml:"mode"`
	// AdaptiveUpdate writes the refined template produced by a successful
	// match back into the template database.
	AdaptiveUpdate bool `toml:"adaptive_update"`
}

// Paths contains file and directory locations.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	DatabaseFile string `toml:"database_file"`
	JournalFile  string `toml:"journal_file"`
	HostKeyFile  string `toml:"host_key_file"`
}

// Session contains job timing configuration, in seconds.
type Session struct {
	ConnectTimeout int `toml:"connect_timeout"`
	// JobTimeout bounds a single job; 0 disables the limit so loops run until canceled.
	JobTimeout int `toml:"job_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for facegate.
//
// Configuration sections by subsystem:
//   - Device: driver selection, serial port, auto-detection, preview camera
//   - Flow: local (device-side users) or server (local template database) mode
//   - Paths: data directory, template database, journal, pairing key, logs
//   - Session: connect and job timeouts
//   - Logging: log format and level
type Config struct {
	Device  Device  `toml:"device"`
	Flow    Flow    `toml:"flow"`
	Paths   Paths   `toml:"paths"`
	Session Session `toml:"session"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/facegate/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
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

	projectPath, err := filepath.Abs("facegate.toml")
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

// EnsureDirectories creates the data, log, and lock directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.Device.LockDir,
		filepath.Dir(c.Paths.DatabaseFile),
		filepath.Dir(c.Paths.JournalFile),
		filepath.Dir(c.Paths.HostKeyFile),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ServerMode reports whether templates are stored and matched locally.
func (c *Config) ServerMode() bool {
	return c.Flow.Mode == FlowModeServer
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Session.ConnectTimeout) * time.Second
}

// JobTimeout returns the per-job timeout, or zero when jobs are unbounded.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Session.JobTimeout) * time.Second
}

// DeviceLockPath returns the lock file guarding exclusive access to the configured port.
func (c *Config) DeviceLockPath(port string) string {
	name := strings.Trim(strings.ReplaceAll(port, string(filepath.Separator), "_"), "_")
	if name == "" {
		name = "device"
	}
	return filepath.Join(c.Device.LockDir, name+".lock")
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
