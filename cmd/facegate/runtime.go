package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"facegate/internal/config"
	"facegate/internal/device"
	_ "facegate/internal/device/sim"
	"facegate/internal/events"
	"facegate/internal/journal"
	"facegate/internal/logging"
	"facegate/internal/matcher"
	"facegate/internal/pairing"
	"facegate/internal/preview"
	"facegate/internal/serialport"
	"facegate/internal/session"
	"facegate/internal/templatestore"
)

type runtimeOptions struct {
	// quiet suppresses terminal events for machine-readable output.
	quiet   bool
	preview bool
}

// deviceRuntime owns everything a single device command needs.
type deviceRuntime struct {
	cfg        *config.Config
	logger     *slog.Logger
	orch       *session.Orchestrator
	dispatcher *events.Dispatcher
	sink       *terminalSink
	store      *templatestore.Store
	journal    *journal.Journal
	relay      *preview.Relay
}

func (c *commandContext) openRuntime(cmd *cobra.Command, opts runtimeOptions) (*deviceRuntime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	ctx := cmd.Context()

	serial, err := serialport.Resolve(ctx, cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("resolve serial port: %w", err)
	}
	gateway, err := device.Open(cfg.Device.Driver, device.Options{Logger: logger, StateDir: cfg.Paths.DataDir})
	if err != nil {
		return nil, err
	}

	rt := &deviceRuntime{cfg: cfg, logger: logger}
	sessionOpts := session.Options{
		Gateway:        gateway,
		Serial:         serial,
		CameraNumber:   cfg.Device.CameraNumber,
		ServerMode:     cfg.ServerMode(),
		LockPath:       cfg.DeviceLockPath(serial.Port),
		ConnectTimeout: cfg.ConnectTimeout(),
		JobTimeout:     cfg.JobTimeout(),
		Logger:         logger,
	}

	if cfg.ServerMode() {
		rt.store = templatestore.New(cfg.Paths.DatabaseFile, logger)
		rt.store.Load()
		sessionOpts.Store = rt.store
		if cfg.Flow.AdaptiveUpdate {
			sessionOpts.UpdatePolicy = matcher.ApplyUpdates
		}
	}

	if jr, err := journal.Open(cfg.Paths.JournalFile); err != nil {
		logging.WarnWithContext(logger, "job journal unavailable", "journal_open_failed",
			logging.String("path", cfg.Paths.JournalFile),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "job history is not recorded"))
	} else {
		rt.journal = jr
		sessionOpts.Journal = jr
	}

	if keys, err := pairing.LoadOrCreate(cfg.Paths.HostKeyFile); err != nil {
		logging.WarnWithContext(logger, "host key unavailable", "host_key_failed",
			logging.String("path", cfg.Paths.HostKeyFile),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the damaged key file to regenerate it"),
			logging.String(logging.FieldImpact, "the device is not paired"))
	} else {
		sessionOpts.Keys = keys
	}

	if opts.preview {
		rt.relay = preview.NewRelay(logger)
		sessionOpts.Preview = rt.relay
	}

	rt.sink = newTerminalSink(cmd.OutOrStdout(), opts.quiet)
	rt.dispatcher = events.NewDispatcher(rt.sink)
	sessionOpts.Sink = rt.dispatcher

	orch, err := session.New(sessionOpts)
	if err != nil {
		rt.close()
		return nil, err
	}
	if err := orch.Start(ctx); err != nil {
		rt.close()
		return nil, err
	}
	rt.orch = orch
	return rt, nil
}

func (rt *deviceRuntime) close() {
	if rt.orch != nil {
		rt.orch.Stop()
	}
	if rt.dispatcher != nil {
		rt.dispatcher.Close()
	}
	if rt.sink != nil {
		rt.sink.finish()
	}
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
}

// run executes one job. The first interrupt cancels the device operation,
// a second one stops waiting.
func (rt *deviceRuntime) run(ctx context.Context, fn func(context.Context, *session.Orchestrator) (session.Outcome, error)) (session.Outcome, error) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-signals:
			rt.orch.Cancel()
		case <-done:
			return
		}
		select {
		case <-signals:
			stop()
		case <-done:
		}
	}()

	outcome, err := fn(ctx, rt.orch)
	rt.dispatcher.Flush()
	return outcome, err
}

// withRuntime opens a runtime, runs one job and closes everything.
func (c *commandContext) withRuntime(cmd *cobra.Command, opts runtimeOptions, fn func(context.Context, *session.Orchestrator) (session.Outcome, error)) (session.Outcome, *deviceRuntime, error) {
	rt, err := c.openRuntime(cmd, opts)
	if err != nil {
		return session.Outcome{}, nil, err
	}
	defer rt.close()
	outcome, err := rt.run(cmd.Context(), fn)
	return outcome, rt, err
}
