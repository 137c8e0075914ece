package testsupport

import (
	"path/filepath"
	"testing"

	"facegate/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Device.Port = "/dev/ttyTEST0"
	cfgVal.Device.LockDir = filepath.Join(base, "locks")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DatabaseFile = filepath.Join(base, "data", "db")
	cfgVal.Paths.JournalFile = filepath.Join(base, "data", "journal.db")
	cfgVal.Paths.HostKeyFile = filepath.Join(base, "data", "host_key.pem")
	cfgVal.Session.ConnectTimeout = 2

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

// WithServerMode switches the flow to host-side matching.
func WithServerMode() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Flow.Mode = config.FlowModeServer
	}
}

// WithAdaptiveUpdate enables template refinement on match.
func WithAdaptiveUpdate() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Flow.AdaptiveUpdate = true
	}
}

// WithPort overrides the serial port on the test config.
func WithPort(port string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.Port = port
	}
}

// WithEnsuredDirectories creates the configured directories.
func WithEnsuredDirectories() ConfigOption {
	return func(b *configBuilder) {
		if err := b.cfg.EnsureDirectories(); err != nil {
			b.t.Fatalf("ensure directories: %v", err)
		}
	}
}
