package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"facegate/internal/device"
)

// State is the lifecycle position of the session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateCancelling
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Kind names a job.
type Kind string

const (
	KindEnroll                  Kind = "enroll"
	KindEnrollExtract           Kind = "enroll-extract"
	KindAuthenticate            Kind = "authenticate"
	KindAuthenticateLoop        Kind = "authenticate-loop"
	KindAuthenticateExtract     Kind = "authenticate-extract"
	KindAuthenticateExtractLoop Kind = "authenticate-extract-loop"
	KindDeleteUser              Kind = "delete-user"
	KindDeleteAll               Kind = "delete-all"
	KindDeleteUserLocal         Kind = "delete-user-local"
	KindDeleteAllLocal          Kind = "delete-all-local"
	KindStandby                 Kind = "standby"
	KindSetSettings             Kind = "set-settings"
	KindQuerySettings           Kind = "query-settings"
	KindQueryUsers              Kind = "query-users"
	KindInitialize              Kind = "initialize"
	KindPreview                 Kind = "preview"
)

// Kinds lists every job kind.
func Kinds() []Kind {
	return []Kind{
		KindEnroll, KindEnrollExtract,
		KindAuthenticate, KindAuthenticateLoop,
		KindAuthenticateExtract, KindAuthenticateExtractLoop,
		KindDeleteUser, KindDeleteAll, KindDeleteUserLocal, KindDeleteAllLocal,
		KindStandby, KindSetSettings, KindQuerySettings, KindQueryUsers, KindInitialize, KindPreview,
	}
}

// Loop reports whether the kind repeats until canceled.
func (k Kind) Loop() bool {
	return k == KindAuthenticateLoop || k == KindAuthenticateExtractLoop
}

// NeedsIdentity reports whether a Request of this kind must carry an identity.
func (k Kind) NeedsIdentity() bool {
	switch k {
	case KindEnroll, KindEnrollExtract, KindDeleteUser, KindDeleteUserLocal:
		return true
	default:
		return false
	}
}

// UsesStore reports whether the kind reads or writes the template store.
func (k Kind) UsesStore() bool {
	switch k {
	case KindEnrollExtract, KindAuthenticateExtract, KindAuthenticateExtractLoop,
		KindDeleteUserLocal, KindDeleteAllLocal:
		return true
	default:
		return false
	}
}

func (k Kind) valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Request describes a job to run.
type Request struct {
	Kind     Kind
	Identity string
	// Settings is applied by KindSetSettings.
	Settings device.AuthConfig
	// Frames bounds KindPreview; zero captures one frame.
	Frames int
}

// Result classifies how a job ended.
type Result string

const (
	ResultSuccess           Result = "success"
	ResultFailure           Result = "failure"
	ResultCanceled          Result = "canceled"
	ResultConnectionError   Result = "connection_error"
	ResultDuplicateIdentity Result = "duplicate_identity"
)

// DeviceInfo is collected by KindInitialize.
type DeviceInfo struct {
	Firmware        []string `json:"firmware" yaml:"firmware"`
	FirmwareVersion string   `json:"firmware_version,omitempty" yaml:"firmware_version,omitempty"`
	Title           string   `json:"title" yaml:"title"`
	Paired          bool     `json:"paired" yaml:"paired"`
}

// Outcome is the final report of a job.
type Outcome struct {
	ID              uuid.UUID
	Kind            Kind
	Identity        string
	Result          Result
	Message         string
	Err             error
	MatchedIdentity string
	Settings        *device.AuthConfig
	Users           []string
	DeviceInfo      *DeviceInfo
	Frames          int
	Started         time.Time
	Finished        time.Time
}

// Duration reports how long the job ran.
func (o Outcome) Duration() time.Duration {
	if o.Finished.IsZero() || o.Started.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

func (o *Outcome) succeed(message string) {
	o.Result = ResultSuccess
	o.Message = message
	o.Err = nil
}

func (o *Outcome) fail(message string, err error) {
	o.Result = ResultFor(err)
	o.Message = message
	o.Err = err
}

// Ticket is the future of a submitted job.
type Ticket struct {
	id      uuid.UUID
	kind    Kind
	done    chan struct{}
	outcome Outcome
}

func newTicket(kind Kind) *Ticket {
	return &Ticket{id: uuid.New(), kind: kind, done: make(chan struct{})}
}

// ID returns the job identifier.
func (t *Ticket) ID() uuid.UUID { return t.id }

// Kind returns the job kind.
func (t *Ticket) Kind() Kind { return t.kind }

// Done is closed once the outcome is available.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the job finished or ctx is done. The returned error is
// the job error, or the context error when the wait was abandoned.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{ID: t.id, Kind: t.kind}, ctx.Err()
	case <-t.done:
		return t.outcome, t.outcome.Err
	}
}

func (t *Ticket) complete(outcome Outcome) {
	t.outcome = outcome
	close(t.done)
}
