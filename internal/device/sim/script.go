package sim

import (
	"os"
	"strings"
	"time"

	"facegate/internal/device"
)

// Operation names used by Script.Statuses, Script.PanicOn and Calls.
const (
	OpConnect                 = "connect"
	OpDisconnect              = "disconnect"
	OpPing                    = "ping"
	OpFirmware                = "firmware"
	OpPair                    = "pair"
	OpCancel                  = "cancel"
	OpEnroll                  = "enroll"
	OpEnrollExtract           = "enroll_extract"
	OpAuthenticate            = "authenticate"
	OpAuthenticateLoop        = "authenticate_loop"
	OpAuthenticateExtract     = "authenticate_extract"
	OpAuthenticateExtractLoop = "authenticate_extract_loop"
	OpMatch                   = "match"
	OpStandby                 = "standby"
	OpRemoveUser              = "remove_user"
	OpRemoveAllUsers          = "remove_all_users"
	OpQueryUsers              = "query_users"
	OpQuerySettings           = "query_settings"
	OpSetSettings             = "set_settings"
)

// FaceEnv selects the simulated face when the driver is opened by name.
const FaceEnv = "FACEGATE_SIM_FACE"

// Script controls simulator behaviour.
type Script struct {
	Firmware string
	// Face is the identity standing in front of the camera; empty means nobody.
	Face        string
	EnrollHints []device.EnrollStatus
	AuthHints   []device.AuthStatus
	// EnrollResult and AuthResult replace the computed result when non-zero.
	EnrollResult device.EnrollStatus
	AuthResult   device.AuthStatus
	// Statuses forces the return status of an operation, skipping its effect.
	Statuses map[string]device.Status
	// Returns replaces the return status of an operation after it ran.
	Returns map[string]device.Status
	// PanicOn names an operation that panics when invoked.
	PanicOn string
	// LoopIterations bounds loop operations; zero loops until canceled.
	LoopIterations int
	StepDelay      time.Duration
	// BeforeResult runs right before a result callback, after the last cancel check.
	BeforeResult func()
	// OnConnect runs once a connect succeeded.
	OnConnect     func()
	MatchErr      error
	UpdateOnMatch bool
	CancelStatus  device.Status
	PreviewWidth  int
	PreviewHeight int
}

// DefaultScript is used when the driver is opened through the registry.
func DefaultScript() Script {
	return Script{
		Firmware:    "OPFW:sim-1.0.0|NNLED:sim-1.0.0|RECOG:sim-1.0.0",
		Face:        strings.TrimSpace(os.Getenv(FaceEnv)),
		EnrollHints: []device.EnrollStatus{device.EnrollCameraStarted, device.EnrollFaceDetected},
		AuthHints: []device.AuthStatus{
			device.AuthCameraStarted,
			device.AuthFaceDetected,
			device.AuthFaceDetected,
		},
		StepDelay:     150 * time.Millisecond,
		PreviewWidth:  320,
		PreviewHeight: 240,
	}
}

// TemplateFor returns the template the simulator extracts for identity.
func TemplateFor(identity string) device.Template {
	return device.NewTemplate([]byte("sim-face:" + identity))
}
