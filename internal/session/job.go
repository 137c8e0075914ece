package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/gofrs/flock"

	"facegate/internal/device"
	"facegate/internal/events"
	"facegate/internal/journal"
	"facegate/internal/logging"
)

const lockRetryDelay = 100 * time.Millisecond

type job struct {
	req       Request
	ticket    *Ticket
	submitted time.Time
	logger    *slog.Logger
	// started is set once SessionStart was emitted.
	started bool
}

func (o *Orchestrator) execute(parent context.Context, j *job) {
	ctx := logging.WithJob(parent, j.ticket.id.String(), string(j.req.Kind))
	cancel := func() {}
	if o.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.jobTimeout)
	}
	defer cancel()

	j.logger = logging.WithContext(ctx, o.logger)
	if j.req.Identity != "" {
		j.logger = j.logger.With(logging.String(logging.FieldIdentity, j.req.Identity))
	}
	out := Outcome{
		ID:       j.ticket.id,
		Kind:     j.req.Kind,
		Identity: j.req.Identity,
		Started:  time.Now(),
	}
	j.logger.Info("job started", logging.String(logging.FieldEventType, "job_started"))

	o.run(ctx, j, &out)
	if out.Result == "" {
		out.succeed("")
	}

	if j.started {
		if j.req.Kind.Loop() {
			o.sink.LoopToggled(false)
		}
		o.sink.SessionEnd()
	}
	out.Finished = time.Now()
	o.record(ctx, j, out)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("result", string(out.Result)),
		logging.Duration("duration", out.Duration()),
	}
	if out.MatchedIdentity != "" {
		attrs = append(attrs, logging.String("matched_identity", out.MatchedIdentity))
	}
	if out.Err != nil {
		attrs = append(attrs, logging.Error(out.Err))
	}
	j.logger.Info("job finished", logging.Args(attrs...)...)

	o.state.Store(int32(StateIdle))
	j.ticket.complete(out)
}

// run takes the job from Connecting through Disconnecting. Every exit path
// releases the device lock, and disconnects once connect succeeded.
func (o *Orchestrator) run(ctx context.Context, j *job, out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.jobPanicked(j, out, r)
		}
	}()

	if j.req.Kind == KindEnrollExtract && o.store.Contains(j.req.Identity) {
		msg := "User ID already exists in database"
		o.sink.Status(msg, events.Failure)
		out.fail(msg, Wrap(ErrDuplicateIdentity, j.req.Kind, "enroll", j.req.Identity, nil))
		return
	}

	unlock, err := o.lockDevice(ctx)
	if err != nil {
		o.connectionFailed(j, out, err)
		return
	}
	defer unlock(j.logger)

	if err := o.connect(ctx); err != nil {
		o.connectionFailed(j, out, err)
		return
	}
	defer o.disconnect(j)

	o.state.CompareAndSwap(int32(StateConnecting), int32(StateRunning))
	if o.canceled.Load() {
		o.reportCanceled(j, out)
		return
	}
	j.started = true
	o.sink.SessionStart(sessionTitle(j.req))
	if j.req.Kind.Loop() {
		o.sink.LoopToggled(true)
	}
	o.dispatchGuarded(ctx, j, out)
}

// dispatchGuarded recovers a panicking job before the device is disconnected.
// Loop jobs get a cancel first so the device leaves its loop.
func (o *Orchestrator) dispatchGuarded(ctx context.Context, j *job, out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.jobPanicked(j, out, r)
			if j.req.Kind.Loop() {
				status := o.forwardCancel()
				j.logger.Debug("canceled loop after panic", logging.String("status", status.String()))
			}
		}
	}()
	o.dispatch(ctx, j, out)
}

func (o *Orchestrator) jobPanicked(j *job, out *Outcome, r any) {
	logging.ErrorWithContext(j.logger, "job panicked", "job_panic",
		logging.Any("panic", r),
		logging.String("stack", string(debug.Stack())),
		logging.String(logging.FieldErrorHint, "report the device driver failure"),
		logging.String(logging.FieldImpact, "job aborted and device disconnected"),
	)
	msg := "Device Error"
	o.sink.Status(msg, events.Failure)
	out.fail(msg, Wrap(ErrGatewayOperation, j.req.Kind, "panic", fmt.Sprint(r), nil))
}

func (o *Orchestrator) dispatch(ctx context.Context, j *job, out *Outcome) {
	switch j.req.Kind {
	case KindEnroll:
		o.runEnroll(ctx, j, out)
	case KindEnrollExtract:
		o.runEnrollExtract(ctx, j, out)
	case KindAuthenticate, KindAuthenticateLoop:
		o.runAuthenticate(ctx, j, out)
	case KindAuthenticateExtract, KindAuthenticateExtractLoop:
		o.runAuthenticateExtract(ctx, j, out)
	case KindDeleteUser:
		o.runDeleteUser(ctx, j, out)
	case KindDeleteAll:
		o.runDeleteAll(ctx, j, out)
	case KindDeleteUserLocal:
		o.runDeleteUserLocal(ctx, j, out)
	case KindDeleteAllLocal:
		o.runDeleteAllLocal(ctx, j, out)
	case KindStandby:
		o.runStandby(ctx, j, out)
	case KindSetSettings:
		o.runSetSettings(ctx, j, out)
	case KindQuerySettings:
		o.runQuerySettings(ctx, j, out)
	case KindQueryUsers:
		o.runQueryUsers(ctx, j, out)
	case KindInitialize:
		o.runInitialize(ctx, j, out)
	case KindPreview:
		o.runPreview(ctx, j, out)
	}
}

func (o *Orchestrator) lockDevice(ctx context.Context) (func(*slog.Logger), error) {
	if o.lockPath == "" {
		return func(*slog.Logger) {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(o.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(o.lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", o.serial.Port, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s is in use by another process", o.serial.Port)
	}
	return func(logger *slog.Logger) {
		if err := lock.Unlock(); err != nil {
			logging.WarnWithContext(logger, "failed to release device lock", "device_unlock_failed",
				logging.String("lock_path", o.lockPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the stale lock file"),
				logging.String(logging.FieldImpact, "other processes may wait for the device"),
			)
		}
	}, nil
}

func (o *Orchestrator) connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()
	status := o.gw.Connect(connectCtx, o.serial)
	if !status.OK() {
		return &GatewayError{Op: "connect", Status: status.String()}
	}
	return nil
}

func (o *Orchestrator) connectionFailed(j *job, out *Outcome, err error) {
	o.sink.Log("Connection error")
	o.sink.Status("Connection Error", events.Failure)
	logging.WarnWithContext(j.logger, "device connection failed", "device_connect_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the serial port setting and cable"),
		logging.String(logging.FieldImpact, "job was not run"),
	)
	out.fail("Connection Error", Wrap(ErrConnection, j.req.Kind, "connect", o.serial.Port, err))
}

func (o *Orchestrator) disconnect(j *job) {
	o.state.Store(int32(StateDisconnecting))
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(j.logger, "gateway disconnect panicked", "device_disconnect_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "power cycle the device"),
				logging.String(logging.FieldImpact, "device may still hold the previous session"),
			)
		}
	}()
	o.gw.Disconnect()
}

func (o *Orchestrator) record(ctx context.Context, j *job, out Outcome) {
	if o.journal == nil {
		return
	}
	entry := journal.Entry{
		ID:              out.ID.String(),
		Kind:            string(out.Kind),
		Identity:        out.Identity,
		Result:          string(out.Result),
		Message:         out.Message,
		MatchedIdentity: out.MatchedIdentity,
		StartedAt:       out.Started,
		FinishedAt:      out.Finished,
		Duration:        out.Duration(),
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	if err := o.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(j.logger, "failed to journal job outcome", "journal_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the journal database file"),
			logging.String(logging.FieldImpact, "job is missing from history"),
		)
	}
}

func (o *Orchestrator) reportCanceled(j *job, out *Outcome) {
	o.sink.Log(canceledTitle(j.req.Kind))
	o.sink.Status("Canceled", events.Failure)
	out.fail("Canceled", Wrap(ErrCanceled, j.req.Kind, "", "canceled by request", nil))
}

// cancelOnDone stops the device operation when the job context ends.
func (o *Orchestrator) cancelOnDone() {
	o.canceled.Store(true)
	o.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling))
	o.logger.Debug("job context done, canceling device operation")
	o.forwardCancel()
}

func (o *Orchestrator) gatewayFailed(j *job, out *Outcome, op, message string, status fmt.Stringer) {
	o.sink.Status(message, events.Failure)
	gwErr := &GatewayError{Op: op, Status: status.String()}
	logging.WarnWithContext(j.logger, "device operation failed", "device_operation_failed",
		logging.String("operation", op),
		logging.String("status", status.String()),
		logging.String(logging.FieldErrorHint, "check the device log and retry"),
		logging.String(logging.FieldImpact, "job failed"),
	)
	out.fail(message, gwErr)
}

func (o *Orchestrator) refreshUsers(ctx context.Context, j *job, out *Outcome, fromStore bool) {
	var ids []string
	if fromStore {
		ids = o.store.ListIdentities()
	} else {
		users, status := o.gw.QueryUserIDs(ctx)
		if !status.OK() {
			o.sink.Log(fmt.Sprintf("Failed to query users: %s", status.Text()))
			logging.WarnWithContext(j.logger, "failed to refresh user list", "user_list_failed",
				logging.String("status", status.String()),
				logging.String(logging.FieldErrorHint, "run users list again"),
				logging.String(logging.FieldImpact, "displayed user list may be stale"),
			)
			return
		}
		ids = users
	}
	if ids == nil {
		ids = []string{}
	}
	out.Users = ids
	o.sink.Log(fmt.Sprintf("%d users", len(ids)))
	o.sink.UserListChanged(ids)
}

func (o *Orchestrator) logSettings(cfg device.AuthConfig) {
	o.sink.Log(" * " + cfg.CameraRotation.String())
	o.sink.Log(" * Security " + cfg.SecurityLevel.String())
}

func sessionTitle(req Request) string {
	switch req.Kind {
	case KindEnroll, KindEnrollExtract:
		return fmt.Sprintf("Enroll \"%s\"", req.Identity)
	case KindAuthenticate:
		return "Authenticate"
	case KindAuthenticateLoop:
		return "Auth Loop"
	case KindAuthenticateExtract:
		return "Extracting Faceprints"
	case KindAuthenticateExtractLoop:
		return "Authentication faceprints extraction loop"
	case KindDeleteUser, KindDeleteUserLocal:
		return fmt.Sprintf("Delete \"%s\"", req.Identity)
	case KindDeleteAll, KindDeleteAllLocal:
		return "Delete Users"
	case KindStandby:
		return "Standby"
	case KindSetSettings:
		return "SetAuthSettings"
	case KindQuerySettings:
		return "QueryAuthSettings"
	case KindQueryUsers:
		return "QueryUsers"
	case KindInitialize:
		return "Initialize"
	case KindPreview:
		return "Preview"
	default:
		return string(req.Kind)
	}
}

func canceledTitle(kind Kind) string {
	switch kind {
	case KindEnroll, KindEnrollExtract:
		return "Enroll Canceled"
	case KindAuthenticate, KindAuthenticateLoop, KindAuthenticateExtract, KindAuthenticateExtractLoop:
		return "Authentication Canceled"
	default:
		return "Job Canceled"
	}
}
