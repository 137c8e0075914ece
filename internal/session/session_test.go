package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/internal/config"
	"facegate/internal/device"
	"facegate/internal/device/sim"
	"facegate/internal/events"
	"facegate/internal/matcher"
	"facegate/internal/pairing"
	"facegate/internal/preview"
	"facegate/internal/session"
	"facegate/internal/templatestore"
	"facegate/internal/testsupport"
)

type harness struct {
	cfg   *config.Config
	gw    *sim.Gateway
	sink  *testsupport.RecordingSink
	store *templatestore.Store
	orch  *session.Orchestrator
}

func testScript() sim.Script {
	return sim.Script{
		Firmware:    "OPFW:1.2.3|NNLED:4.5.6",
		EnrollHints: []device.EnrollStatus{device.EnrollCameraStarted, device.EnrollFaceDetected},
		AuthHints:   []device.AuthStatus{device.AuthCameraStarted, device.AuthFaceDetected},
	}
}

func newHarness(t *testing.T, script sim.Script, cfg *config.Config, mutate func(*session.Options)) *harness {
	t.Helper()
	gw, err := sim.New(script, device.Options{})
	require.NoError(t, err)

	h := &harness{cfg: cfg, gw: gw, sink: &testsupport.RecordingSink{}}
	opts := session.Options{
		Gateway:        gw,
		Serial:         device.SerialConfig{Port: cfg.Device.Port, Type: device.SerialUSB},
		Sink:           h.sink,
		ServerMode:     cfg.ServerMode(),
		LockPath:       cfg.DeviceLockPath(cfg.Device.Port),
		ConnectTimeout: cfg.ConnectTimeout(),
	}
	if cfg.ServerMode() {
		h.store = templatestore.New(cfg.Paths.DatabaseFile, nil)
		opts.Store = h.store
	}
	if mutate != nil {
		mutate(&opts)
	}
	if s, ok := opts.Store.(*templatestore.Store); ok {
		h.store = s
	}

	h.orch, err = session.New(opts)
	require.NoError(t, err)
	require.NoError(t, h.orch.Start(context.Background()))
	t.Cleanup(h.orch.Stop)
	return h
}

func statusTexts(sink *testsupport.RecordingSink) []string {
	return sink.Texts(testsupport.EventStatus)
}

func TestEnrollLocalSuccess(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t), nil)

	out, err := h.orch.Enroll(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, session.ResultSuccess, out.Result)
	assert.Equal(t, "Enroll Success", out.Message)
	assert.Equal(t, []string{"alice"}, out.Users)
	assert.Equal(t, session.StateIdle, h.orch.State())

	assert.Equal(t, []string{sim.OpConnect, sim.OpEnroll, sim.OpQueryUsers, sim.OpDisconnect}, h.gw.Calls())
	assert.Equal(t, []string{`Enroll "alice"`}, h.sink.Texts(testsupport.EventSessionStart))
	assert.Equal(t, 1, h.sink.Count(testsupport.EventSessionEnd))
	assert.Equal(t, device.PoseCount, h.sink.Count(testsupport.EventProgress))
	assert.Contains(t, statusTexts(h.sink), "Enroll Success")
	assert.Contains(t, h.sink.Texts(testsupport.EventLog), "1 users")
}

func TestSessionEndFollowsLastResult(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t), nil)

	_, err := h.orch.Enroll(context.Background(), "alice")
	require.NoError(t, err)

	evs := h.sink.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, testsupport.EventSessionEnd, evs[len(evs)-1].Kind)
}

func TestHintsAreDeduplicatedPerResult(t *testing.T) {
	script := testScript()
	script.AuthHints = []device.AuthStatus{
		device.AuthFaceDetected,
		device.AuthFaceDetected,
		device.AuthFaceDetected,
	}
	script.LoopIterations = 2
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	out, err := h.orch.AuthenticateLoop(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.ResultFailure, out.Result)

	hint := device.AuthFaceDetected.Text()
	count := 0
	for _, text := range h.sink.Texts(testsupport.EventLog) {
		if text == hint {
			count++
		}
	}
	assert.Equal(t, 2, count, "one hint per iteration after de-duplication")

	loops := []bool{}
	for _, ev := range h.sink.Events() {
		if ev.Kind == testsupport.EventLoop {
			loops = append(loops, ev.Running)
		}
	}
	assert.Equal(t, []bool{true, false}, loops)
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	script := testScript()
	script.BeforeResult = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	ticket, err := h.orch.Submit(session.Request{Kind: session.KindEnroll, Identity: "alice"})
	require.NoError(t, err)
	<-entered
	assert.Equal(t, session.StateRunning, h.orch.State())

	_, err = h.orch.Submit(session.Request{Kind: session.KindStandby})
	require.ErrorIs(t, err, session.ErrBusy)
	assert.Equal(t, session.StateRunning, h.orch.State())

	close(release)
	out, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ResultSuccess, out.Result)
	assert.Equal(t, ticket.ID(), out.ID)
	assert.Equal(t, session.StateIdle, h.orch.State())
	assert.Equal(t, 0, h.gw.CallCount(sim.OpStandby))
}

func TestConnectionErrorNeverEntersRunning(t *testing.T) {
	script := testScript()
	script.Statuses = map[string]device.Status{sim.OpConnect: device.StatusSerialError}
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	out, err := h.orch.Authenticate(context.Background())
	require.ErrorIs(t, err, session.ErrConnection)
	assert.Equal(t, session.ResultConnectionError, out.Result)
	assert.Equal(t, []string{sim.OpConnect}, h.gw.Calls())
	assert.Zero(t, h.sink.Count(testsupport.EventSessionStart))
	assert.Zero(t, h.sink.Count(testsupport.EventSessionEnd))

	last, ok := h.sink.LastStatus()
	require.True(t, ok)
	assert.Equal(t, "Connection Error", last.Text)
	assert.Equal(t, events.Failure, last.Severity)
	assert.Equal(t, session.StateIdle, h.orch.State())
}

func TestDeviceLockHeldElsewhereIsConnectionError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEnsuredDirectories())
	h := newHarness(t, testScript(), cfg, func(o *session.Options) {
		o.ConnectTimeout = 200 * time.Millisecond
	})

	other := flock.New(cfg.DeviceLockPath(cfg.Device.Port))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	out, err := h.orch.QuerySettings(context.Background())
	require.ErrorIs(t, err, session.ErrConnection)
	assert.Equal(t, session.ResultConnectionError, out.Result)
	assert.Empty(t, h.gw.Calls())
}

func TestCancelBeforeResultWinsOverSuccess(t *testing.T) {
	var orch *session.Orchestrator
	var attempted bool
	script := testScript()
	script.BeforeResult = func() { attempted = orch.Cancel() }
	h := newHarness(t, script, testsupport.NewConfig(t), nil)
	orch = h.orch

	out, err := h.orch.Enroll(context.Background(), "alice")
	require.ErrorIs(t, err, session.ErrCanceled)
	assert.True(t, attempted)
	assert.Equal(t, session.ResultCanceled, out.Result)
	assert.Equal(t, "Canceled", out.Message)
	assert.Empty(t, out.Users)

	statuses := statusTexts(h.sink)
	assert.Contains(t, statuses, "Cancel..")
	assert.Contains(t, statuses, "Cancel Ok")
	assert.Contains(t, statuses, "Canceled")
	assert.NotContains(t, statuses, "Enroll Success")
	assert.Contains(t, h.sink.Texts(testsupport.EventLog), "Cancel status: Ok")
	assert.Equal(t, 1, h.gw.CallCount(sim.OpCancel))
	assert.Equal(t, sim.OpDisconnect, h.gw.Calls()[len(h.gw.Calls())-1])
}

func TestCancelFailureIsReportedButAttempted(t *testing.T) {
	var orch *session.Orchestrator
	var attempted bool
	script := testScript()
	script.CancelStatus = device.StatusError
	script.Face = "alice"
	script.BeforeResult = func() { attempted = orch.Cancel() }
	h := newHarness(t, script, testsupport.NewConfig(t), nil)
	orch = h.orch

	out, err := h.orch.Authenticate(context.Background())
	require.ErrorIs(t, err, session.ErrCanceled)
	assert.True(t, attempted)
	assert.Equal(t, session.ResultCanceled, out.Result)
	assert.Contains(t, statusTexts(h.sink), "Cancel Failed")
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t), nil)
	assert.False(t, h.orch.Cancel())
	assert.Empty(t, h.sink.Events())
	assert.Empty(t, h.gw.Calls())
}

func TestCancelStopsAuthenticationLoop(t *testing.T) {
	script := testScript()
	script.StepDelay = 5 * time.Millisecond
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	ticket, err := h.orch.Submit(session.Request{Kind: session.KindAuthenticateLoop})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.sink.Count(testsupport.EventStatus) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, h.orch.Cancel())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := ticket.Wait(ctx)
	require.ErrorIs(t, err, session.ErrCanceled)
	assert.Equal(t, session.ResultCanceled, out.Result)
	assert.Equal(t, sim.OpDisconnect, h.gw.Calls()[len(h.gw.Calls())-1])
	assert.Equal(t, session.StateIdle, h.orch.State())
}

// cancelOnStatus cancels the running job the first time status text arrives.
type cancelOnStatus struct {
	*testsupport.RecordingSink
	text      string
	orch      *session.Orchestrator
	once      sync.Once
	attempted bool
}

func (s *cancelOnStatus) Status(text string, severity events.Severity) {
	s.RecordingSink.Status(text, severity)
	if text == s.text {
		s.once.Do(func() { s.attempted = s.orch.Cancel() })
	}
}

func TestCancelBetweenLoopIterationsReportsCanceled(t *testing.T) {
	sink := &cancelOnStatus{RecordingSink: &testsupport.RecordingSink{}, text: "alice"}
	h := newHarness(t, testScript(), testsupport.NewConfig(t), func(o *session.Options) { o.Sink = sink })
	sink.orch = h.orch
	_, err := h.orch.Enroll(context.Background(), "alice")
	require.NoError(t, err)
	h.gw.SetFace("alice")

	ticket, err := h.orch.Submit(session.Request{Kind: session.KindAuthenticateLoop})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := ticket.Wait(ctx)
	require.ErrorIs(t, err, session.ErrCanceled)
	assert.True(t, sink.attempted)
	assert.Equal(t, session.ResultCanceled, out.Result)
	assert.Equal(t, "Canceled", out.Message)

	calls := h.gw.Calls()
	assert.Equal(t, []string{sim.OpAuthenticateLoop, sim.OpCancel, sim.OpDisconnect}, calls[len(calls)-3:])
	last, ok := sink.LastStatus()
	require.True(t, ok)
	assert.Equal(t, "Canceled", last.Text)
}

func TestCancelWhileConnectingSkipsOperation(t *testing.T) {
	var orch *session.Orchestrator
	var attempted bool
	script := testScript()
	script.OnConnect = func() { attempted = orch.Cancel() }
	h := newHarness(t, script, testsupport.NewConfig(t), nil)
	orch = h.orch

	out, err := h.orch.Authenticate(context.Background())
	require.ErrorIs(t, err, session.ErrCanceled)
	assert.True(t, attempted)
	assert.Equal(t, session.ResultCanceled, out.Result)
	assert.Equal(t, []string{sim.OpConnect, sim.OpDisconnect}, h.gw.Calls())
	assert.Zero(t, h.sink.Count(testsupport.EventSessionStart))
	assert.Equal(t, session.StateIdle, h.orch.State())
}

func TestTrailingFailureKeepsStoredEnrollment(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	script := testScript()
	script.Returns = map[string]device.Status{sim.OpEnrollExtract: device.StatusError}
	h := newHarness(t, script, cfg, nil)

	out, err := h.orch.Enroll(context.Background(), "dave")
	require.NoError(t, err)
	assert.Equal(t, session.ResultSuccess, out.Result)
	assert.Equal(t, "Enroll Success", out.Message)
	assert.Equal(t, []string{"dave"}, out.Users)
	assert.True(t, h.store.Contains("dave"))

	last, ok := h.sink.LastStatus()
	require.True(t, ok)
	assert.Equal(t, "Enroll Success", last.Text)
	assert.Equal(t, events.Success, last.Severity)
}

func TestLoopPanicCancelsBeforeDisconnect(t *testing.T) {
	script := testScript()
	script.PanicOn = sim.OpAuthenticateLoop
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	out, err := h.orch.AuthenticateLoop(context.Background())
	require.ErrorIs(t, err, session.ErrGatewayOperation)
	assert.Equal(t, session.ResultFailure, out.Result)
	assert.Equal(t, []string{sim.OpConnect, sim.OpAuthenticateLoop, sim.OpCancel, sim.OpDisconnect}, h.gw.Calls())
	assert.Equal(t, session.StateIdle, h.orch.State())
}

func TestGatewayFailureStillDisconnects(t *testing.T) {
	script := testScript()
	script.Statuses = map[string]device.Status{sim.OpEnroll: device.StatusSerialError}
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	out, err := h.orch.Enroll(context.Background(), "alice")
	require.ErrorIs(t, err, session.ErrGatewayOperation)
	assert.Equal(t, session.ResultFailure, out.Result)

	var gwErr *session.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "enroll", gwErr.Op)
	assert.Equal(t, device.StatusSerialError.String(), gwErr.Status)
	assert.Equal(t, "gateway", gwErr.ErrorKind())

	assert.Equal(t, []string{sim.OpConnect, sim.OpEnroll, sim.OpDisconnect}, h.gw.Calls())
	assert.Equal(t, 1, h.sink.Count(testsupport.EventSessionEnd))
}

func TestGatewayPanicStillDisconnects(t *testing.T) {
	script := testScript()
	script.PanicOn = sim.OpAuthenticate
	h := newHarness(t, script, testsupport.NewConfig(t), nil)

	out, err := h.orch.Authenticate(context.Background())
	require.ErrorIs(t, err, session.ErrGatewayOperation)
	assert.Equal(t, session.ResultFailure, out.Result)
	assert.Equal(t, sim.OpDisconnect, h.gw.Calls()[len(h.gw.Calls())-1])
	assert.Equal(t, session.StateIdle, h.orch.State())

	// The orchestrator keeps serving jobs after a panic.
	h.gw.SetScript(testScript())
	_, err = h.orch.QuerySettings(context.Background())
	require.NoError(t, err)
}

func TestLocalAuthenticateReportsIdentity(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t), nil)
	ctx := context.Background()
	_, err := h.orch.Enroll(ctx, "alice")
	require.NoError(t, err)

	h.gw.SetFace("alice")
	out, err := h.orch.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", out.MatchedIdentity)
	assert.Contains(t, h.sink.Texts(testsupport.EventLog), `Success "alice"`)

	h.gw.SetFace("mallory")
	out, err = h.orch.Authenticate(ctx)
	require.ErrorIs(t, err, session.ErrGatewayOperation)
	assert.Equal(t, device.AuthForbidden.Text(), out.Message)
}

func TestQueryUsersOnlyAsksForUserIDs(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t), nil)
	ctx := context.Background()
	_, err := h.orch.Enroll(ctx, "alice")
	require.NoError(t, err)
	before := len(h.gw.Calls())

	out, err := h.orch.QueryUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.KindQueryUsers, out.Kind)
	assert.Equal(t, []string{"alice"}, out.Users)
	assert.Equal(t, []string{sim.OpConnect, sim.OpQueryUsers, sim.OpDisconnect}, h.gw.Calls()[before:])

	changes := h.sink.Events()
	last := changes[len(changes)-2]
	assert.Equal(t, testsupport.EventUsers, last.Kind)
	assert.Equal(t, []string{"alice"}, last.Users)
}

func TestEnrollExtractDuplicateMakesNoGatewayCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	store := testsupport.NewTemplateStore(t, cfg, sim.TemplateFor, "alice")
	h := newHarness(t, testScript(), cfg, func(o *session.Options) { o.Store = store })

	out, err := h.orch.Enroll(context.Background(), "alice")
	require.ErrorIs(t, err, session.ErrDuplicateIdentity)
	assert.Equal(t, session.ResultDuplicateIdentity, out.Result)
	assert.Empty(t, h.gw.Calls())
	assert.Equal(t, []string{"User ID already exists in database"}, statusTexts(h.sink))
	assert.Equal(t, 1, store.Len())
}

func TestEnrollExtractStoresAndPersists(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	h := newHarness(t, testScript(), cfg, nil)

	out, err := h.orch.Enroll(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, out.Users)
	assert.Equal(t, 1, h.gw.CallCount(sim.OpEnrollExtract))
	assert.Zero(t, h.gw.CallCount(sim.OpQueryUsers))

	reloaded := templatestore.New(cfg.Paths.DatabaseFile, nil)
	reloaded.Load()
	assert.Equal(t, []string{"carol"}, reloaded.ListIdentities())
}

func TestServerMatchAliceBob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	store := testsupport.NewTemplateStore(t, cfg, sim.TemplateFor, "alice", "bob")
	script := testScript()
	script.Face = "bob"
	h := newHarness(t, script, cfg, func(o *session.Options) { o.Store = store })

	out, err := h.orch.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.KindAuthenticateExtract, out.Kind)
	assert.Equal(t, "bob", out.MatchedIdentity)
	assert.Equal(t, "Match with bob !", out.Message)
	assert.Equal(t, 2, h.gw.CallCount(sim.OpMatch))
	assert.Contains(t, statusTexts(h.sink), "Matching faceprints to database")
}

func TestServerMatchMiss(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	store := testsupport.NewTemplateStore(t, cfg, sim.TemplateFor, "alice", "bob")
	script := testScript()
	script.Face = "carol"
	h := newHarness(t, script, cfg, func(o *session.Options) { o.Store = store })

	out, err := h.orch.Authenticate(context.Background())
	require.ErrorIs(t, err, session.ErrNoMatch)
	assert.Equal(t, session.ResultFailure, out.Result)
	assert.Equal(t, "Faceprints extracted but did not match any user", out.Message)
	assert.Equal(t, 2, h.gw.CallCount(sim.OpMatch))
}

func TestServerMatchAppliesAdaptiveUpdate(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode(), testsupport.WithAdaptiveUpdate())
	store := testsupport.NewTemplateStore(t, cfg, sim.TemplateFor, "alice")
	script := testScript()
	script.Face = "alice"
	script.UpdateOnMatch = true
	h := newHarness(t, script, cfg, func(o *session.Options) {
		o.Store = store
		o.UpdatePolicy = matcher.ApplyUpdates
	})

	_, err := h.orch.Authenticate(context.Background())
	require.NoError(t, err)

	reloaded := templatestore.New(cfg.Paths.DatabaseFile, nil)
	reloaded.Load()
	assert.Equal(t, []string{"alice"}, reloaded.ListIdentities())
}

func TestServerDeleteLocal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	store := testsupport.NewTemplateStore(t, cfg, sim.TemplateFor, "alice", "bob")
	h := newHarness(t, testScript(), cfg, func(o *session.Options) { o.Store = store })
	ctx := context.Background()

	out, err := h.orch.DeleteUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, session.KindDeleteUserLocal, out.Kind)
	assert.Equal(t, []string{"bob"}, out.Users)

	_, err = h.orch.DeleteUser(ctx, "ghost")
	require.ErrorIs(t, err, session.ErrUnknownIdentity)

	out, err = h.orch.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Delete All: Ok", out.Message)
	assert.Empty(t, out.Users)
	assert.Zero(t, store.Len())
	assert.Zero(t, h.gw.CallCount(sim.OpRemoveAllUsers))
}

func TestStandbyRejectedInServerMode(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithServerMode())
	h := newHarness(t, testScript(), cfg, nil)

	_, err := h.orch.Standby(context.Background())
	require.ErrorIs(t, err, session.ErrUnsupported)
	assert.Empty(t, h.gw.Calls())
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t), nil)
	ctx := context.Background()

	want := device.AuthConfig{SecurityLevel: device.SecurityMedium, CameraRotation: device.Rotation180}
	out, err := h.orch.SetSettings(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "AuthSettings Done", out.Message)

	out, err = h.orch.QuerySettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Settings)
	assert.Equal(t, want, *out.Settings)
	assert.Contains(t, h.sink.Texts(testsupport.EventLog), " * Rotation 180 Deg")
	assert.Contains(t, h.sink.Texts(testsupport.EventLog), " * Security Medium")
}

func TestInitializePairsAndDescribesDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	keys, err := pairing.LoadOrCreate(cfg.Paths.HostKeyFile)
	require.NoError(t, err)
	h := newHarness(t, testScript(), cfg, func(o *session.Options) { o.Keys = keys })

	out, err := h.orch.Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.DeviceInfo)
	assert.Equal(t, "facegate (firmware 1.2.3)", out.DeviceInfo.Title)
	assert.Equal(t, []string{"opfw:1.2.3", "nnled:4.5.6"}, out.DeviceInfo.Firmware)
	assert.True(t, out.DeviceInfo.Paired)
	assert.True(t, keys.Paired())

	logs := h.sink.Texts(testsupport.EventLog)
	for _, want := range []string{"Firmware:", " * opfw:1.2.3", "Pairing..", "Pairing Ok", " * Rotation 0 Deg", " * Security High", "0 users"} {
		assert.Contains(t, logs, want)
	}
	assert.Equal(t, []string{sim.OpConnect, sim.OpPing, sim.OpFirmware, sim.OpPair, sim.OpQuerySettings, sim.OpQueryUsers, sim.OpDisconnect}, h.gw.Calls())
}

func TestInitializePairingFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	keys, err := pairing.LoadOrCreate(cfg.Paths.HostKeyFile)
	require.NoError(t, err)
	script := testScript()
	script.Statuses = map[string]device.Status{sim.OpPair: device.StatusSecurityError}
	h := newHarness(t, script, cfg, func(o *session.Options) { o.Keys = keys })

	out, err := h.orch.Initialize(context.Background())
	require.ErrorIs(t, err, session.ErrGatewayOperation)
	assert.Equal(t, "Failed pairing", out.Message)
	assert.False(t, keys.Paired())
}

func TestJournalRecordsOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)
	script := testScript()
	script.Statuses = map[string]device.Status{sim.OpConnect: device.StatusSerialError}
	h := newHarness(t, script, cfg, func(o *session.Options) { o.Journal = j })
	ctx := context.Background()

	_, err := h.orch.QuerySettings(ctx)
	require.Error(t, err)
	h.gw.SetScript(testScript())
	out, err := h.orch.QuerySettings(ctx)
	require.NoError(t, err)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, out.ID.String(), entries[0].ID)
	assert.Equal(t, string(session.ResultSuccess), entries[0].Result)
	assert.Equal(t, string(session.ResultConnectionError), entries[1].Result)
	assert.Equal(t, string(session.KindQuerySettings), entries[1].Kind)
	assert.NotEmpty(t, entries[1].Error)
}

func TestPreviewCapturesFrames(t *testing.T) {
	script := testScript()
	script.PreviewWidth, script.PreviewHeight = 16, 8
	relay := preview.NewRelay(nil)
	h := newHarness(t, script, testsupport.NewConfig(t), func(o *session.Options) { o.Preview = relay })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.orch.Preview(ctx, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Frames, 2)
	assert.GreaterOrEqual(t, relay.Frames(), uint64(2))

	img, err := relay.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestSubmitValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	gw, err := sim.New(testScript(), device.Options{})
	require.NoError(t, err)
	orch, err := session.New(session.Options{Gateway: gw, Serial: device.SerialConfig{Port: cfg.Device.Port}})
	require.NoError(t, err)

	_, err = orch.Submit(session.Request{Kind: session.KindStandby})
	require.ErrorIs(t, err, session.ErrNotRunning)

	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	_, err = orch.Submit(session.Request{Kind: session.KindEnroll})
	require.ErrorIs(t, err, session.ErrInvalidRequest)
	_, err = orch.Submit(session.Request{Kind: "dance"})
	require.ErrorIs(t, err, session.ErrInvalidRequest)
	_, err = orch.Submit(session.Request{Kind: session.KindAuthenticateExtract})
	require.ErrorIs(t, err, session.ErrUnsupported)
	_, err = orch.Submit(session.Request{Kind: session.KindPreview})
	require.ErrorIs(t, err, session.ErrUnsupported)
	assert.Equal(t, session.StateIdle, orch.State())
}

func TestNewRequiresServerStore(t *testing.T) {
	gw, err := sim.New(testScript(), device.Options{})
	require.NoError(t, err)
	_, err = session.New(session.Options{Gateway: gw, Serial: device.SerialConfig{Port: "/dev/ttyX"}, ServerMode: true})
	require.Error(t, err)
}

func TestKindsAreClassified(t *testing.T) {
	for _, kind := range session.Kinds() {
		if kind.Loop() {
			assert.True(t, slices.Contains([]session.Kind{session.KindAuthenticateLoop, session.KindAuthenticateExtractLoop}, kind))
		}
	}
	assert.True(t, session.KindEnrollExtract.UsesStore())
	assert.False(t, session.KindEnroll.UsesStore())
	assert.True(t, session.KindDeleteUser.NeedsIdentity())
}

func TestResultForClassifiesMarkers(t *testing.T) {
	assert.Equal(t, session.ResultSuccess, session.ResultFor(nil))
	assert.Equal(t, session.ResultCanceled, session.ResultFor(session.Wrap(session.ErrCanceled, session.KindEnroll, "", "", nil)))
	assert.Equal(t, session.ResultConnectionError, session.ResultFor(session.Wrap(session.ErrConnection, "", "connect", "", errors.New("boom"))))
	assert.Equal(t, session.ResultFailure, session.ResultFor(&session.GatewayError{Op: "ping", Status: "Error"}))

	err := session.Wrap(session.ErrDuplicateIdentity, session.KindEnrollExtract, "enroll", "alice", nil)
	assert.EqualError(t, err, "identity already exists: enroll-extract: enroll: alice")
	assert.Equal(t, session.ResultDuplicateIdentity, session.ResultFor(err))
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, testScript(), testsupport.NewConfig(t, testsupport.WithPort(filepath.Join("/dev", "ttyUSB9"))), nil)
	h.orch.Stop()
	h.orch.Stop()
	_, err := h.orch.Submit(session.Request{Kind: session.KindStandby})
	require.ErrorIs(t, err, session.ErrNotRunning)
}
