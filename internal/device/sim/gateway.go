package sim

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"facegate/internal/device"
	"facegate/internal/logging"
	"facegate/internal/pairing"
)

// DriverName is the registry name of the simulator.
const DriverName = "simulator"

// StateFile is the simulator state file inside Options.StateDir.
const StateFile = "simulator.json"

var errCanceled = errors.New("sim: canceled")

func init() {
	device.Register(DriverName, func(opts device.Options) (device.Gateway, error) {
		return New(DefaultScript(), opts)
	})
}

// Gateway is a scripted device.Gateway.
type Gateway struct {
	logger *slog.Logger
	state  *stateFile
	key    *ecdsa.PrivateKey

	mu        sync.Mutex
	script    Script
	connected bool
	calls     []string

	canceled atomic.Bool

	previewMu   sync.Mutex
	previewStop chan struct{}
	previewDone chan struct{}
}

// New builds a simulator. Device-side state is loaded from opts.StateDir when set.
func New(script Script, opts device.Options) (*Gateway, error) {
	logger := logging.NewComponentLogger(opts.Logger, "simulator")
	key, err := pairing.GenerateKey()
	if err != nil {
		return nil, err
	}
	path := ""
	if opts.StateDir != "" {
		path = filepath.Join(opts.StateDir, StateFile)
	}
	return &Gateway{
		logger: logger,
		state:  loadState(path, logger),
		key:    key,
		script: script,
	}, nil
}

// SetScript replaces the script.
func (g *Gateway) SetScript(script Script) {
	g.mu.Lock()
	g.script = script
	g.mu.Unlock()
}

// SetFace changes who stands in front of the camera.
func (g *Gateway) SetFace(identity string) {
	g.mu.Lock()
	g.script.Face = identity
	g.mu.Unlock()
}

// Calls returns the operations invoked so far, in order.
func (g *Gateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallCount reports how often op was invoked.
func (g *Gateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, call := range g.calls {
		if call == op {
			count++
		}
	}
	return count
}

// Users returns the identities enrolled on the simulated device.
func (g *Gateway) Users() []string {
	return g.state.users()
}

func (g *Gateway) snapshot() Script {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.script
}

// begin records op and reports a forced status when the script has one.
func (g *Gateway) begin(op string) (device.Status, bool) {
	g.mu.Lock()
	g.calls = append(g.calls, op)
	status, forced := g.script.Statuses[op]
	panicking := g.script.PanicOn == op
	g.mu.Unlock()
	if panicking {
		panic(fmt.Sprintf("sim: scripted panic in %s", op))
	}
	return status, forced
}

// finish applies Script.Returns to the status op computed.
func (g *Gateway) finish(op string, status device.Status) device.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if forced, ok := g.script.Returns[op]; ok {
		return forced
	}
	return status
}

// ready is begin plus the connection check shared by every device operation.
func (g *Gateway) ready(op string) (device.Status, bool) {
	if status, forced := g.begin(op); forced {
		return status, true
	}
	g.mu.Lock()
	connected := g.connected
	g.mu.Unlock()
	if !connected {
		return device.StatusSerialError, true
	}
	return device.StatusOk, false
}

func (g *Gateway) step(ctx context.Context, delay time.Duration) error {
	if g.canceled.Load() {
		return errCanceled
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if g.canceled.Load() {
		return errCanceled
	}
	return nil
}

func (g *Gateway) Connect(_ context.Context, cfg device.SerialConfig) device.Status {
	if status, forced := g.begin(OpConnect); forced {
		return status
	}
	if cfg.Port == "" {
		return device.StatusSerialError
	}
	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
	g.canceled.Store(false)
	g.logger.Debug("simulated device connected", logging.String(logging.FieldPort, cfg.Port))
	if hook := g.snapshot().OnConnect; hook != nil {
		hook()
	}
	return device.StatusOk
}

func (g *Gateway) Disconnect() {
	g.begin(OpDisconnect)
	_ = g.StopPreview()
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}

func (g *Gateway) Ping(context.Context) device.Status {
	status, _ := g.ready(OpPing)
	return status
}

func (g *Gateway) QueryFirmwareVersion(context.Context) (string, device.Status) {
	if status, done := g.ready(OpFirmware); done {
		return "", status
	}
	return g.snapshot().Firmware, device.StatusOk
}

func (g *Gateway) Pair(_ context.Context, req device.PairingRequest) (device.PairingResponse, device.Status) {
	if status, done := g.ready(OpPair); done {
		return device.PairingResponse{}, status
	}
	hostKey, err := pairing.DecodePublicKey(req.HostPublicKey)
	if err != nil || !pairing.VerifyWith(hostKey, req.HostPublicKey, req.HostSignature) {
		return device.PairingResponse{}, device.StatusSecurityError
	}
	sig, err := pairing.SignWith(g.key, req.HostPublicKey)
	if err != nil {
		return device.PairingResponse{}, device.StatusError
	}
	return device.PairingResponse{
		DevicePublicKey: pairing.EncodePublicKey(&g.key.PublicKey),
		DeviceSignature: sig,
	}, device.StatusOk
}

func (g *Gateway) Cancel() device.Status {
	if status, forced := g.begin(OpCancel); forced {
		return status
	}
	g.canceled.Store(true)
	return g.snapshot().CancelStatus
}

func (g *Gateway) Enroll(ctx context.Context, identity string, cb device.EnrollCallbacks) (status device.Status) {
	if forced, done := g.ready(OpEnroll); done {
		return forced
	}
	defer func() { status = g.finish(OpEnroll, status) }()
	script := g.snapshot()
	result, err := g.runEnroll(ctx, script, cb.Hint, cb.Progress)
	if errors.Is(err, errCanceled) {
		emit(cb.Result, device.EnrollFailure)
		return device.StatusOk
	}
	if err != nil {
		return device.StatusError
	}
	if result.Success() {
		g.state.addUser(identity)
	}
	emit(cb.Result, result)
	return device.StatusOk
}

func (g *Gateway) EnrollExtract(ctx context.Context, identity string, cb device.EnrollExtractCallbacks) (status device.Status) {
	if forced, done := g.ready(OpEnrollExtract); done {
		return forced
	}
	defer func() { status = g.finish(OpEnrollExtract, status) }()
	script := g.snapshot()
	result, err := g.runEnroll(ctx, script, cb.Hint, cb.Progress)
	if errors.Is(err, errCanceled) {
		emit2(cb.Result, device.EnrollFailure, device.Template{})
		return device.StatusOk
	}
	if err != nil {
		return device.StatusError
	}
	tpl := device.Template{}
	if result.Success() {
		tpl = TemplateFor(identity)
	}
	emit2(cb.Result, result, tpl)
	return device.StatusOk
}

func (g *Gateway) runEnroll(ctx context.Context, script Script, hint func(device.EnrollStatus), progress func(device.FacePose)) (device.EnrollStatus, error) {
	for _, h := range script.EnrollHints {
		if err := g.step(ctx, script.StepDelay); err != nil {
			return device.EnrollFailure, err
		}
		emit(hint, h)
	}
	for pose := range device.PoseCount {
		if err := g.step(ctx, script.StepDelay); err != nil {
			return device.EnrollFailure, err
		}
		emit(progress, device.FacePose(pose))
	}
	if script.BeforeResult != nil {
		script.BeforeResult()
	}
	if script.EnrollResult != device.EnrollSuccess {
		return script.EnrollResult, nil
	}
	return device.EnrollSuccess, nil
}

func (g *Gateway) Authenticate(ctx context.Context, cb device.AuthCallbacks) (status device.Status) {
	if forced, done := g.ready(OpAuthenticate); done {
		return forced
	}
	defer func() { status = g.finish(OpAuthenticate, status) }()
	return g.authCycle(ctx, g.snapshot(), cb)
}

func (g *Gateway) AuthenticateLoop(ctx context.Context, cb device.AuthCallbacks) (status device.Status) {
	if forced, done := g.ready(OpAuthenticateLoop); done {
		return forced
	}
	defer func() { status = g.finish(OpAuthenticateLoop, status) }()
	script := g.snapshot()
	for i := 0; script.LoopIterations == 0 || i < script.LoopIterations; i++ {
		if g.canceled.Load() {
			return device.StatusOk
		}
		if status := g.authCycle(ctx, script, cb); !status.OK() {
			return status
		}
		script = g.snapshot()
	}
	return device.StatusOk
}

func (g *Gateway) authCycle(ctx context.Context, script Script, cb device.AuthCallbacks) device.Status {
	status, identity, err := g.runAuth(ctx, script, cb.Hint)
	if errors.Is(err, errCanceled) {
		emit2(cb.Result, device.AuthFailure, "")
		return device.StatusOk
	}
	if err != nil {
		return device.StatusError
	}
	emit2(cb.Result, status, identity)
	return device.StatusOk
}

func (g *Gateway) runAuth(ctx context.Context, script Script, hint func(device.AuthStatus)) (device.AuthStatus, string, error) {
	for _, h := range script.AuthHints {
		if err := g.step(ctx, script.StepDelay); err != nil {
			return device.AuthFailure, "", err
		}
		emit(hint, h)
	}
	if script.BeforeResult != nil {
		script.BeforeResult()
	}
	switch {
	case script.AuthResult != device.AuthSuccess:
		return script.AuthResult, "", nil
	case script.Face == "":
		return device.AuthNoFaceDetected, "", nil
	case g.state.hasUser(script.Face):
		return device.AuthSuccess, script.Face, nil
	default:
		return device.AuthForbidden, "", nil
	}
}

func (g *Gateway) AuthenticateExtract(ctx context.Context, cb device.ExtractCallbacks) (status device.Status) {
	if forced, done := g.ready(OpAuthenticateExtract); done {
		return forced
	}
	defer func() { status = g.finish(OpAuthenticateExtract, status) }()
	return g.extractCycle(ctx, g.snapshot(), cb)
}

func (g *Gateway) AuthenticateExtractLoop(ctx context.Context, cb device.ExtractCallbacks) (status device.Status) {
	if forced, done := g.ready(OpAuthenticateExtractLoop); done {
		return forced
	}
	defer func() { status = g.finish(OpAuthenticateExtractLoop, status) }()
	script := g.snapshot()
	for i := 0; script.LoopIterations == 0 || i < script.LoopIterations; i++ {
		if g.canceled.Load() {
			return device.StatusOk
		}
		if status := g.extractCycle(ctx, script, cb); !status.OK() {
			return status
		}
		script = g.snapshot()
	}
	return device.StatusOk
}

func (g *Gateway) extractCycle(ctx context.Context, script Script, cb device.ExtractCallbacks) device.Status {
	for _, h := range script.AuthHints {
		if err := g.step(ctx, script.StepDelay); err != nil {
			if errors.Is(err, errCanceled) {
				emit2(cb.Result, device.AuthFailure, device.Template{})
				return device.StatusOk
			}
			return device.StatusError
		}
		emit(cb.Hint, h)
	}
	if script.BeforeResult != nil {
		script.BeforeResult()
	}
	switch {
	case script.AuthResult != device.AuthSuccess:
		emit2(cb.Result, script.AuthResult, device.Template{})
	case script.Face == "":
		emit2(cb.Result, device.AuthNoFaceDetected, device.Template{})
	default:
		emit2(cb.Result, device.AuthSuccess, TemplateFor(script.Face))
	}
	return device.StatusOk
}

func (g *Gateway) Match(_ context.Context, probe, stored device.Template) (device.MatchResult, error) {
	g.begin(OpMatch)
	script := g.snapshot()
	if script.MatchErr != nil {
		return device.MatchResult{}, script.MatchErr
	}
	if probe.Empty() || !probe.Equal(stored) {
		return device.MatchResult{}, nil
	}
	result := device.MatchResult{Success: true}
	if script.UpdateOnMatch {
		result.ShouldUpdate = true
		result.Updated = probe.Clone()
	}
	return result, nil
}

func (g *Gateway) Standby(context.Context) device.Status {
	status, _ := g.ready(OpStandby)
	return status
}

func (g *Gateway) RemoveUser(_ context.Context, identity string) device.Status {
	if status, done := g.ready(OpRemoveUser); done {
		return status
	}
	if !g.state.removeUser(identity) {
		return device.StatusError
	}
	return device.StatusOk
}

func (g *Gateway) RemoveAllUsers(context.Context) device.Status {
	if status, done := g.ready(OpRemoveAllUsers); done {
		return status
	}
	g.state.removeAll()
	return device.StatusOk
}

func (g *Gateway) QueryUserIDs(context.Context) ([]string, device.Status) {
	if status, done := g.ready(OpQueryUsers); done {
		return nil, status
	}
	return g.state.users(), device.StatusOk
}

func (g *Gateway) QueryAuthSettings(context.Context) (device.AuthConfig, device.Status) {
	if status, done := g.ready(OpQuerySettings); done {
		return device.AuthConfig{}, status
	}
	return g.state.settings(), device.StatusOk
}

func (g *Gateway) SetAuthSettings(_ context.Context, cfg device.AuthConfig) device.Status {
	if status, done := g.ready(OpSetSettings); done {
		return status
	}
	g.state.setSettings(cfg)
	return device.StatusOk
}

func emit[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

func emit2[A, B any](fn func(A, B), a A, b B) {
	if fn != nil {
		fn(a, b)
	}
}

var (
	_ device.Gateway   = (*Gateway)(nil)
	_ device.Previewer = (*Gateway)(nil)
)
