package session

import (
	"context"
	"fmt"

	"facegate/internal/device"
)

// Enroll registers identity on the device in local mode, or extracts its
// faceprints into the template store in server mode.
func (o *Orchestrator) Enroll(ctx context.Context, identity string) (Outcome, error) {
	return o.Run(ctx, Request{Kind: o.pick(KindEnroll, KindEnrollExtract), Identity: identity})
}

// Authenticate runs one authentication attempt.
func (o *Orchestrator) Authenticate(ctx context.Context) (Outcome, error) {
	return o.Run(ctx, Request{Kind: o.pick(KindAuthenticate, KindAuthenticateExtract)})
}

// AuthenticateLoop authenticates repeatedly until Cancel is called.
func (o *Orchestrator) AuthenticateLoop(ctx context.Context) (Outcome, error) {
	return o.Run(ctx, Request{Kind: o.pick(KindAuthenticateLoop, KindAuthenticateExtractLoop)})
}

// DeleteUser removes identity from the device or from the template store.
func (o *Orchestrator) DeleteUser(ctx context.Context, identity string) (Outcome, error) {
	return o.Run(ctx, Request{Kind: o.pick(KindDeleteUser, KindDeleteUserLocal), Identity: identity})
}

// DeleteAll removes every user.
func (o *Orchestrator) DeleteAll(ctx context.Context) (Outcome, error) {
	return o.Run(ctx, Request{Kind: o.pick(KindDeleteAll, KindDeleteAllLocal)})
}

// Standby puts the device into low power mode. Server flow mode keeps the
// device idle between extractions, so it is rejected there.
func (o *Orchestrator) Standby(ctx context.Context) (Outcome, error) {
	if o.server {
		return Outcome{Kind: KindStandby}, fmt.Errorf("%w: standby in server flow mode", ErrUnsupported)
	}
	return o.Run(ctx, Request{Kind: KindStandby})
}

func (o *Orchestrator) QuerySettings(ctx context.Context) (Outcome, error) {
	return o.Run(ctx, Request{Kind: KindQuerySettings})
}

// QueryUsers asks the device for the identities it has enrolled.
func (o *Orchestrator) QueryUsers(ctx context.Context) (Outcome, error) {
	return o.Run(ctx, Request{Kind: KindQueryUsers})
}

func (o *Orchestrator) SetSettings(ctx context.Context, cfg device.AuthConfig) (Outcome, error) {
	return o.Run(ctx, Request{Kind: KindSetSettings, Settings: cfg})
}

// Initialize runs the startup session: ping, firmware, pairing, settings,
// and user list.
func (o *Orchestrator) Initialize(ctx context.Context) (Outcome, error) {
	return o.Run(ctx, Request{Kind: KindInitialize})
}

// Preview captures frames into the configured frame sink.
func (o *Orchestrator) Preview(ctx context.Context, frames int) (Outcome, error) {
	return o.Run(ctx, Request{Kind: KindPreview, Frames: frames})
}

func (o *Orchestrator) pick(local, server Kind) Kind {
	if o.server {
		return server
	}
	return local
}
