package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"facegate/internal/device"
	"facegate/internal/events"
	"facegate/internal/logging"
)

// streamOp runs a callback-driven gateway operation. A job context that ends
// early cancels the device operation.
func (o *Orchestrator) streamOp(ctx context.Context, j *job, out *Outcome, op string, call func(*stream) device.Status) {
	s := o.openStream(j)
	stop := context.AfterFunc(ctx, o.cancelOnDone)
	status := func() device.Status {
		defer stop()
		defer s.close()
		return call(s)
	}()

	if s.panicked != nil {
		msg := "Device Error"
		o.sink.Status(msg, events.Failure)
		out.fail(msg, Wrap(ErrGatewayOperation, j.req.Kind, op, fmt.Sprint(s.panicked), nil))
		return
	}
	if j.req.Kind.Loop() && o.canceled.Load() {
		if out.Result != ResultCanceled {
			o.reportCanceled(j, out)
		}
		return
	}
	if s.results > 0 {
		if !status.OK() {
			logging.WarnWithContext(j.logger, "device reported failure after result", "device_trailing_status",
				logging.String("operation", op),
				logging.String("status", status.String()),
				logging.String(logging.FieldErrorHint, "check the device log"),
				logging.String(logging.FieldImpact, "job keeps the outcome of its last result"),
			)
		}
		return
	}
	if o.canceled.Load() {
		if out.Result != ResultCanceled {
			o.reportCanceled(j, out)
		}
		return
	}
	if !status.OK() {
		o.gatewayFailed(j, out, op, status.Text(), status)
		return
	}
	if !j.req.Kind.Loop() {
		o.gatewayFailed(j, out, op, "No result from device", status)
	}
}

func (o *Orchestrator) runEnroll(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Enrolling..", events.Progress)
	o.streamOp(ctx, j, out, "enroll", func(s *stream) device.Status {
		return o.gw.Enroll(ctx, j.req.Identity, device.EnrollCallbacks{
			Hint:     func(h device.EnrollStatus) { s.hint(h.Text()) },
			Progress: s.progress,
			Result: func(status device.EnrollStatus) {
				s.result(func() { o.onEnrollResult(j, out, status) })
			},
		})
	})
	if out.Result == ResultSuccess {
		o.refreshUsers(ctx, j, out, false)
	}
}

func (o *Orchestrator) runEnrollExtract(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Extracting Faceprints", events.Progress)
	o.streamOp(ctx, j, out, "enroll_extract", func(s *stream) device.Status {
		return o.gw.EnrollExtract(ctx, j.req.Identity, device.EnrollExtractCallbacks{
			Hint:     func(h device.EnrollStatus) { s.hint(h.Text()) },
			Progress: s.progress,
			Result: func(status device.EnrollStatus, tpl device.Template) {
				if !s.result(func() { o.onEnrollExtractResult(j, out, status, tpl) }) {
					tpl.Release()
				}
			},
		})
	})
	if out.Result == ResultSuccess {
		o.refreshUsers(ctx, j, out, true)
	}
}

func (o *Orchestrator) runAuthenticate(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Authenticating..", events.Progress)
	cb := func(s *stream) device.AuthCallbacks {
		return device.AuthCallbacks{
			Hint: func(h device.AuthStatus) { s.hint(h.Text()) },
			Result: func(status device.AuthStatus, identity string) {
				s.result(func() { o.onAuthResult(j, out, status, identity) })
			},
		}
	}
	if j.req.Kind.Loop() {
		o.streamOp(ctx, j, out, "authenticate_loop", func(s *stream) device.Status {
			return o.gw.AuthenticateLoop(ctx, cb(s))
		})
		return
	}
	o.streamOp(ctx, j, out, "authenticate", func(s *stream) device.Status {
		return o.gw.Authenticate(ctx, cb(s))
	})
}

func (o *Orchestrator) runAuthenticateExtract(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Extracting faceprints for authentication ..", events.Progress)
	cb := func(s *stream) device.ExtractCallbacks {
		return device.ExtractCallbacks{
			Hint: func(h device.AuthStatus) { s.hint(h.Text()) },
			Result: func(status device.AuthStatus, tpl device.Template) {
				if !s.result(func() { o.onExtractResult(ctx, j, out, status, tpl) }) {
					tpl.Release()
				}
			},
		}
	}
	if j.req.Kind.Loop() {
		o.streamOp(ctx, j, out, "authenticate_extract_loop", func(s *stream) device.Status {
			return o.gw.AuthenticateExtractLoop(ctx, cb(s))
		})
		return
	}
	o.streamOp(ctx, j, out, "authenticate_extract", func(s *stream) device.Status {
		return o.gw.AuthenticateExtract(ctx, cb(s))
	})
}

func (o *Orchestrator) onEnrollResult(j *job, out *Outcome, status device.EnrollStatus) {
	if o.canceled.Load() {
		o.reportCanceled(j, out)
		return
	}
	if status.Success() {
		o.sink.Status("Enroll Success", events.Success)
		out.succeed("Enroll Success")
		return
	}
	o.enrollFailed(j, out, status)
}

func (o *Orchestrator) onEnrollExtractResult(j *job, out *Outcome, status device.EnrollStatus, tpl device.Template) {
	defer tpl.Release()
	if o.canceled.Load() {
		o.reportCanceled(j, out)
		return
	}
	if !status.Success() {
		o.enrollFailed(j, out, status)
		return
	}
	if tpl.Empty() {
		o.gatewayFailed(j, out, "enroll_extract", "Enroll Failed", emptyTemplate{})
		return
	}
	if !o.store.Push(tpl, j.req.Identity) {
		msg := "User ID already exists in database"
		o.sink.Status(msg, events.Failure)
		out.fail(msg, Wrap(ErrDuplicateIdentity, j.req.Kind, "store", j.req.Identity, nil))
		return
	}
	o.store.Save()
	o.sink.Status("Enroll Success", events.Success)
	out.succeed("Enroll Success")
}

func (o *Orchestrator) enrollFailed(j *job, out *Outcome, status device.EnrollStatus) {
	msg := status.Text()
	if status.SerialFailure() {
		msg = "Enroll Failed"
	}
	o.gatewayFailed(j, out, "enroll", msg, status)
}

func (o *Orchestrator) onAuthResult(j *job, out *Outcome, status device.AuthStatus, identity string) {
	if o.canceled.Load() {
		o.reportCanceled(j, out)
		return
	}
	if !status.Success() {
		o.authFailed(j, out, "authenticate", status)
		return
	}
	o.sink.Log(fmt.Sprintf("Success \"%s\"", identity))
	o.sink.Status(identity, events.Success)
	out.MatchedIdentity = identity
	out.succeed(fmt.Sprintf("Authenticated %s", identity))
}

func (o *Orchestrator) onExtractResult(ctx context.Context, j *job, out *Outcome, status device.AuthStatus, tpl device.Template) {
	defer tpl.Release()
	if o.canceled.Load() {
		o.reportCanceled(j, out)
		return
	}
	if !status.Success() {
		o.authFailed(j, out, "authenticate_extract", status)
		return
	}

	o.sink.Status("Matching faceprints to database", events.Progress)
	result, err := o.engine.MatchAgainstStore(ctx, guardedComparer{gw: o.gw}, tpl)
	if o.canceled.Load() {
		o.reportCanceled(j, out)
		return
	}
	if err != nil {
		msg := "Matching failed"
		o.sink.Status(msg, events.Failure)
		logging.WarnWithContext(j.logger, "faceprint matching failed", "match_failed",
			logging.Error(err),
			logging.Int("comparisons", result.Comparisons),
			logging.String(logging.FieldErrorHint, "retry authentication"),
			logging.String(logging.FieldImpact, "authentication attempt failed"),
		)
		out.fail(msg, Wrap(ErrGatewayOperation, j.req.Kind, "match", "", err))
		return
	}
	if !result.Matched {
		msg := "Faceprints extracted but did not match any user"
		o.sink.Status(msg, events.Failure)
		out.MatchedIdentity = ""
		out.fail(msg, Wrap(ErrNoMatch, j.req.Kind, "match", fmt.Sprintf("%d comparisons", result.Comparisons), nil))
		return
	}
	if result.Updated {
		o.store.Save()
	}
	msg := fmt.Sprintf("Match with %s !", result.Identity)
	o.sink.Log(msg)
	o.sink.Status(msg, events.Success)
	out.MatchedIdentity = result.Identity
	out.succeed(msg)
}

func (o *Orchestrator) authFailed(j *job, out *Outcome, op string, status device.AuthStatus) {
	msg := status.Text()
	if status.SerialFailure() {
		msg = "Authenticate Failed"
	}
	o.sink.Log(status.String())
	out.MatchedIdentity = ""
	o.gatewayFailed(j, out, op, msg, status)
}

// simpleOp reports a request/response gateway call. The cancel flag is not
// consulted because these calls cannot be interrupted.
func (o *Orchestrator) simpleOp(j *job, out *Outcome, op string, status device.Status, okMsg, failMsg string) bool {
	if !status.OK() {
		o.sink.Log(fmt.Sprintf("%s status: %s", op, status))
		o.gatewayFailed(j, out, op, failMsg, status)
		return false
	}
	o.sink.Status(okMsg, events.Success)
	out.succeed(okMsg)
	return true
}

func (o *Orchestrator) runDeleteUser(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Deleting..", events.Progress)
	if o.simpleOp(j, out, "remove_user", o.gw.RemoveUser(ctx, j.req.Identity), "Delete: Ok", "Delete: Failed") {
		o.refreshUsers(ctx, j, out, false)
	}
}

func (o *Orchestrator) runDeleteAll(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Deleting..", events.Progress)
	if o.simpleOp(j, out, "remove_all_users", o.gw.RemoveAllUsers(ctx), "Delete All: Ok", "Delete All: Failed") {
		o.refreshUsers(ctx, j, out, false)
	}
}

func (o *Orchestrator) runDeleteUserLocal(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Deleting..", events.Progress)
	if !o.store.Remove(j.req.Identity) {
		msg := "Delete: Failed"
		o.sink.Status(msg, events.Failure)
		out.fail(msg, Wrap(ErrUnknownIdentity, j.req.Kind, "remove", j.req.Identity, nil))
		return
	}
	o.store.Save()
	o.sink.Status("Delete: Ok", events.Success)
	out.succeed("Delete: Ok")
	o.refreshUsers(ctx, j, out, true)
}

func (o *Orchestrator) runDeleteAllLocal(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Deleting..", events.Progress)
	o.store.RemoveAll()
	o.store.Save()
	o.sink.Status("Delete All: Ok", events.Success)
	out.succeed("Delete All: Ok")
	o.refreshUsers(ctx, j, out, true)
}

func (o *Orchestrator) runStandby(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("Standby", events.Progress)
	o.simpleOp(j, out, "standby", o.gw.Standby(ctx), "Standby Done", "Standby: Failed")
}

func (o *Orchestrator) runSetSettings(ctx context.Context, j *job, out *Outcome) {
	cfg := j.req.Settings
	o.sink.Status("SetAuthSettings "+cfg.SecurityLevel.String(), events.Progress)
	if o.simpleOp(j, out, "set_settings", o.gw.SetAuthSettings(ctx, cfg), "AuthSettings Done", "SetAuthSettings: Failed") {
		o.logSettings(cfg)
		out.Settings = &cfg
	}
}

func (o *Orchestrator) runQuerySettings(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("QueryAuthSettings", events.Progress)
	cfg, status := o.gw.QueryAuthSettings(ctx)
	if o.simpleOp(j, out, "query_settings", status, "QueryAuthSettings Done", "QueryAuthSettings: Failed") {
		o.logSettings(cfg)
		out.Settings = &cfg
	}
}

func (o *Orchestrator) runQueryUsers(ctx context.Context, j *job, out *Outcome) {
	o.sink.Status("QueryUsers", events.Progress)
	ids, status := o.gw.QueryUserIDs(ctx)
	if !o.simpleOp(j, out, "query_users", status, "QueryUsers Done", "QueryUsers: Failed") {
		return
	}
	if ids == nil {
		ids = []string{}
	}
	out.Users = ids
	o.sink.Log(fmt.Sprintf("%d users", len(ids)))
	o.sink.UserListChanged(ids)
}

// runInitialize pings the device, reads its firmware, pairs, and loads the
// settings and user list.
func (o *Orchestrator) runInitialize(ctx context.Context, j *job, out *Outcome) {
	info := &DeviceInfo{Title: "facegate"}
	out.DeviceInfo = info

	if status := o.gw.Ping(ctx); !status.OK() {
		o.gatewayFailed(j, out, "ping", "Ping failed", status)
		return
	}
	version, status := o.gw.QueryFirmwareVersion(ctx)
	if !status.OK() {
		o.gatewayFailed(j, out, "firmware", "Failed querying firmware version", status)
		return
	}
	info.FirmwareVersion = version
	o.sink.Log("Firmware:")
	for part := range strings.SplitSeq(strings.ToLower(version), "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		info.Firmware = append(info.Firmware, part)
		o.sink.Log(" * " + part)
		if v, ok := strings.CutPrefix(part, "opfw:"); ok {
			info.Title = fmt.Sprintf("facegate (firmware %s)", v)
		}
	}

	if o.keys != nil {
		o.sink.Log("Pairing..")
		if err := o.pair(ctx); err != nil {
			msg := "Failed pairing"
			o.sink.Status(msg, events.Failure)
			logging.WarnWithContext(j.logger, "device pairing failed", "pairing_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the stored device key and initialize again"),
				logging.String(logging.FieldImpact, "device is not paired with this host"),
			)
			out.fail(msg, Wrap(ErrGatewayOperation, j.req.Kind, "pair", "", err))
			return
		}
		info.Paired = true
		o.sink.Log("Pairing Ok")
	}

	cfg, status := o.gw.QueryAuthSettings(ctx)
	if !status.OK() {
		o.gatewayFailed(j, out, "query_settings", "QueryAuthSettings: Failed", status)
		return
	}
	o.logSettings(cfg)
	out.Settings = &cfg

	o.refreshUsers(ctx, j, out, o.server)
	o.sink.Status(info.Title, events.Success)
	out.succeed(info.Title)
}

func (o *Orchestrator) pair(ctx context.Context) error {
	hostKey := o.keys.PublicKey()
	sig, err := o.keys.Sign(hostKey)
	if err != nil {
		return fmt.Errorf("sign host key: %w", err)
	}
	resp, status := o.gw.Pair(ctx, device.PairingRequest{HostPublicKey: hostKey, HostSignature: sig})
	if !status.OK() {
		return &GatewayError{Op: "pair", Status: status.String()}
	}
	if err := o.keys.SetDevicePublicKey(resp.DevicePublicKey); err != nil {
		return fmt.Errorf("store device key: %w", err)
	}
	ok, err := o.keys.Verify(hostKey, resp.DeviceSignature)
	if err != nil {
		return fmt.Errorf("verify device signature: %w", err)
	}
	if !ok {
		return errors.New("device signature does not verify")
	}
	return nil
}

// runPreview streams frames into the frame sink until the requested count
// arrived, the job is canceled, or its context ends.
func (o *Orchestrator) runPreview(ctx context.Context, j *job, out *Outcome) {
	previewer := o.gw.(device.Previewer)
	want := int64(max(j.req.Frames, 1))
	var (
		count   atomic.Int64
		once    sync.Once
		reached = make(chan struct{})
	)
	onFrame := func(frame device.Frame) {
		o.frames.OnFrame(frame)
		if count.Add(1) >= want {
			once.Do(func() { close(reached) })
		}
	}

	o.sink.Status("Starting preview", events.Progress)
	if err := previewer.StartPreview(o.camera, onFrame); err != nil {
		msg := "Preview Failed"
		o.sink.Status(msg, events.Failure)
		out.fail(msg, Wrap(ErrGatewayOperation, j.req.Kind, "start_preview", "", err))
		return
	}
	select {
	case <-reached:
	case <-o.cancelSignal:
	case <-ctx.Done():
	}
	if err := previewer.StopPreview(); err != nil {
		logging.WarnWithContext(j.logger, "failed to stop preview", "preview_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reconnect the device"),
			logging.String(logging.FieldImpact, "camera may keep streaming until disconnect"),
		)
	}
	out.Frames = int(count.Load())

	switch {
	case o.canceled.Load():
		o.reportCanceled(j, out)
	case ctx.Err() != nil:
		msg := "Preview Failed"
		o.sink.Status(msg, events.Failure)
		out.fail(msg, Wrap(ErrGatewayOperation, j.req.Kind, "preview", "", ctx.Err()))
	default:
		msg := fmt.Sprintf("Preview Done (%d frames)", out.Frames)
		o.sink.Status(msg, events.Success)
		out.succeed(msg)
	}
}

type guardedComparer struct {
	gw device.Gateway
}

func (c guardedComparer) Match(ctx context.Context, probe, stored device.Template) (result device.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("match panicked: %v", r)
		}
	}()
	return c.gw.Match(ctx, probe, stored)
}

type emptyTemplate struct{}

func (emptyTemplate) String() string { return "EmptyTemplate" }
