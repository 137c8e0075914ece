package device

import "context"

// SerialType identifies the physical link to the module.
type SerialType string

const (
	SerialUSB  SerialType = "usb"
	SerialUART SerialType = "uart"
)

// SerialConfig addresses a module on a serial port.
type SerialConfig struct {
	Port string
	Type SerialType
}

// MatchResult is produced by the gateway match primitive. Updated is owned by
// the caller and must be released.
type MatchResult struct {
	Success      bool
	ShouldUpdate bool
	Updated      Template
}

// PairingRequest carries the host public key and the host signature over it.
type PairingRequest struct {
	HostPublicKey []byte
	HostSignature []byte
}

// PairingResponse carries the device public key and the device signature over
// the host public key.
type PairingResponse struct {
	DevicePublicKey []byte
	DeviceSignature []byte
}

// EnrollCallbacks receive events from Enroll. Any field may be nil.
type EnrollCallbacks struct {
	Hint     func(EnrollStatus)
	Progress func(FacePose)
	Result   func(EnrollStatus)
}

// EnrollExtractCallbacks receive events from EnrollExtract. The template
// passed to Result is owned by the receiver.
type EnrollExtractCallbacks struct {
	Hint     func(EnrollStatus)
	Progress func(FacePose)
	Result   func(EnrollStatus, Template)
}

// AuthCallbacks receive events from Authenticate and AuthenticateLoop. The
// identity passed to Result is empty unless the status is AuthSuccess.
type AuthCallbacks struct {
	Hint   func(AuthStatus)
	Result func(AuthStatus, string)
}

// ExtractCallbacks receive events from AuthenticateExtract and
// AuthenticateExtractLoop. The template passed to Result is owned by the receiver.
type ExtractCallbacks struct {
	Hint   func(AuthStatus)
	Result func(AuthStatus, Template)
}

// Gateway is a connection to one face authentication module. All methods
// block until the device answers. Callbacks may run on goroutines owned by
// the implementation but never after the invoking method has returned.
// Cancel is the only method that may be called concurrently with another.
type Gateway interface {
	Connect(ctx context.Context, cfg SerialConfig) Status
	Disconnect()
	Ping(ctx context.Context) Status
	QueryFirmwareVersion(ctx context.Context) (string, Status)
	Pair(ctx context.Context, req PairingRequest) (PairingResponse, Status)
	Cancel() Status

	Enroll(ctx context.Context, identity string, cb EnrollCallbacks) Status
	EnrollExtract(ctx context.Context, identity string, cb EnrollExtractCallbacks) Status
	Authenticate(ctx context.Context, cb AuthCallbacks) Status
	AuthenticateLoop(ctx context.Context, cb AuthCallbacks) Status
	AuthenticateExtract(ctx context.Context, cb ExtractCallbacks) Status
	AuthenticateExtractLoop(ctx context.Context, cb ExtractCallbacks) Status
	Match(ctx context.Context, probe, stored Template) (MatchResult, error)

	Standby(ctx context.Context) Status
	RemoveUser(ctx context.Context, identity string) Status
	RemoveAllUsers(ctx context.Context) Status
	QueryUserIDs(ctx context.Context) ([]string, Status)
	QueryAuthSettings(ctx context.Context) (AuthConfig, Status)
	SetAuthSettings(ctx context.Context, cfg AuthConfig) Status
}

// Frame is one preview image in BGR24 layout.
type Frame struct {
	Width  int
	Height int
	Stride int
	Data   []byte
}

// Previewer is implemented by gateways that can stream camera frames. The
// callback must copy Data before returning.
type Previewer interface {
	StartPreview(cameraNumber int, onFrame func(Frame)) error
	StopPreview() error
}
