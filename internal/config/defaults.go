package config

const (
	defaultDriver         = "simulator"
	defaultSerialType     = SerialTypeUSB
	defaultAutoDetect     = false
	defaultPort           = "/dev/ttyACM0"
	defaultCameraNumber   = -1
	defaultFlowMode       = FlowModeLocal
	defaultDataDir        = "~/.local/share/facegate"
	defaultLogDir         = "~/.local/share/facegate/logs"
	defaultDatabaseName   = "db"
	defaultJournalName    = "journal.db"
	defaultHostKeyName    = "host_key.pem"
	defaultLockDirName    = "locks"
	defaultConnectTimeout = 10
	defaultJobTimeout     = 0
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// defaultVendorIDs lists USB vendor identifiers accepted by serial auto-detection.
var defaultVendorIDs = []string{"2aad"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Device: Device{
			Driver:       defaultDriver,
			Port:         defaultPort,
			SerialType:   defaultSerialType,
			AutoDetect:   defaultAutoDetect,
			VendorIDs:    append([]string(nil), defaultVendorIDs...),
			CameraNumber: defaultCameraNumber,
		},
		Flow: Flow{
			Mode: defaultFlowMode,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Session: Session{
			ConnectTimeout: defaultConnectTimeout,
			JobTimeout:     defaultJobTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
