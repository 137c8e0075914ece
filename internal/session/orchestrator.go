package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"facegate/internal/device"
	"facegate/internal/events"
	"facegate/internal/journal"
	"facegate/internal/logging"
	"facegate/internal/matcher"
)

const defaultConnectTimeout = 10 * time.Second

// TemplateStore is the part of templatestore.Store the orchestrator uses.
type TemplateStore interface {
	matcher.Source
	Push(tpl device.Template, identity string) bool
	Contains(identity string) bool
	Remove(identity string) bool
	RemoveAll() bool
	ListIdentities() []string
	Save()
}

// Recorder persists job outcomes.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// KeyPair signs the pairing handshake and keeps the device key.
type KeyPair interface {
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
	SetDevicePublicKey(raw []byte) error
	Verify(msg, sig []byte) (bool, error)
}

// FrameSink receives preview frames.
type FrameSink interface {
	OnFrame(frame device.Frame)
}

// Options wires an Orchestrator.
type Options struct {
	Gateway device.Gateway
	Serial  device.SerialConfig
	Sink    events.Sink
	// Store is required by server flow kinds.
	Store        TemplateStore
	UpdatePolicy matcher.UpdatePolicy
	Journal      Recorder
	Keys         KeyPair
	Preview      FrameSink
	CameraNumber int
	ServerMode   bool
	// LockPath is a flock file guarding the serial port across processes.
	LockPath       string
	ConnectTimeout time.Duration
	// JobTimeout bounds a whole job; zero means no limit.
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Orchestrator executes one job at a time against the gateway.
type Orchestrator struct {
	gw      device.Gateway
	serial  device.SerialConfig
	sink    events.Sink
	store   TemplateStore
	engine  *matcher.Engine
	journal Recorder
	keys    KeyPair
	frames  FrameSink
	camera  int
	server  bool
	logger  *slog.Logger

	lockPath       string
	connectTimeout time.Duration
	jobTimeout     time.Duration

	state        atomic.Int32
	canceled     atomic.Bool
	cancelSignal chan struct{}
	jobs         chan *job

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates opts and builds an orchestrator. Call Start before Submit.
func New(opts Options) (*Orchestrator, error) {
	if opts.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}
	if strings.TrimSpace(opts.Serial.Port) == "" {
		return nil, errors.New("session: serial port is required")
	}
	if opts.ServerMode && opts.Store == nil {
		return nil, errors.New("session: server flow mode requires a template store")
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.Nop{}
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	logger := logging.NewComponentLogger(opts.Logger, "session").With(
		logging.String(logging.FieldPort, opts.Serial.Port),
	)
	o := &Orchestrator{
		gw:             opts.Gateway,
		serial:         opts.Serial,
		sink:           sink,
		store:          opts.Store,
		journal:        opts.Journal,
		keys:           opts.Keys,
		frames:         opts.Preview,
		camera:         opts.CameraNumber,
		server:         opts.ServerMode,
		logger:         logger,
		lockPath:       opts.LockPath,
		connectTimeout: connectTimeout,
		jobTimeout:     opts.JobTimeout,
		cancelSignal:   make(chan struct{}, 1),
		jobs:           make(chan *job, 1),
	}
	if opts.Store != nil {
		o.engine = matcher.New(opts.Store, opts.UpdatePolicy, opts.Logger)
	}
	return o, nil
}

// Start launches the worker goroutine.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("session: orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	go o.work(runCtx)
	return nil
}

// Stop cancels the active job, waits for it to disconnect, and stops the worker.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()

	select {
	case j := <-o.jobs:
		o.state.Store(int32(StateIdle))
		j.ticket.complete(Outcome{
			ID:       j.ticket.id,
			Kind:     j.req.Kind,
			Identity: j.req.Identity,
			Result:   ResultFailure,
			Err:      ErrNotRunning,
			Started:  j.submitted,
			Finished: time.Now(),
		})
	default:
	}
}

// State reports the current session state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// ServerMode reports whether faceprints are matched on the host.
func (o *Orchestrator) ServerMode() bool {
	return o.server
}

// Submit claims the session for req and returns its ticket. It fails with
// ErrBusy while another job is active.
func (o *Orchestrator) Submit(req Request) (*Ticket, error) {
	req.Identity = strings.TrimSpace(req.Identity)
	if err := o.validate(req); err != nil {
		return nil, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.running {
		return nil, ErrNotRunning
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, o.State())
	}
	o.canceled.Store(false)
	select {
	case <-o.cancelSignal:
	default:
	}

	j := &job{req: req, ticket: newTicket(req.Kind), submitted: time.Now()}
	o.jobs <- j
	return j.ticket, nil
}

// Run submits req and waits for its outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	ticket, err := o.Submit(req)
	if err != nil {
		return Outcome{Kind: req.Kind, Identity: req.Identity}, err
	}
	return ticket.Wait(ctx)
}

func (o *Orchestrator) validate(req Request) error {
	if !req.Kind.valid() {
		return fmt.Errorf("%w: unknown job kind %q", ErrInvalidRequest, req.Kind)
	}
	if req.Kind.NeedsIdentity() && req.Identity == "" {
		return fmt.Errorf("%w: %s requires an identity", ErrInvalidRequest, req.Kind)
	}
	if req.Kind.UsesStore() && o.store == nil {
		return fmt.Errorf("%w: %s requires a template store", ErrUnsupported, req.Kind)
	}
	if req.Kind == KindPreview {
		if _, ok := o.gw.(device.Previewer); !ok || o.frames == nil {
			return fmt.Errorf("%w: preview is not available", ErrUnsupported)
		}
	}
	return nil
}

// Cancel asks the running job to stop. It reports whether a cancel was
// attempted; a cancel the device rejects still counts as attempted.
func (o *Orchestrator) Cancel() bool {
	state := o.State()
	if state == StateIdle || state == StateDisconnecting {
		return false
	}
	o.canceled.Store(true)
	select {
	case o.cancelSignal <- struct{}{}:
	default:
	}
	o.sink.Status("Cancel..", events.Progress)
	o.sink.Log("Cancel..")

	if !o.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling)) && o.State() != StateCancelling {
		o.logger.Debug("cancel recorded before device operation", logging.String("state", o.State().String()))
		return true
	}

	status := o.forwardCancel()
	o.sink.Log(fmt.Sprintf("Cancel status: %s", status))
	if status.OK() {
		o.sink.Status("Cancel Ok", events.Success)
	} else {
		o.sink.Status("Cancel Failed", events.Failure)
		logging.WarnWithContext(o.logger, "device rejected cancel", "cancel_failed",
			logging.String("status", status.String()),
			logging.String(logging.FieldErrorHint, "wait for the operation to finish or reconnect the device"),
			logging.String(logging.FieldImpact, "the running job continues until the device ends it"),
		)
	}
	return true
}

func (o *Orchestrator) forwardCancel() (status device.Status) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("gateway cancel panicked", logging.Any("panic", r))
			status = device.StatusError
		}
	}()
	return o.gw.Cancel()
}

func (o *Orchestrator) work(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-o.jobs:
			o.execute(ctx, j)
		}
	}
}
