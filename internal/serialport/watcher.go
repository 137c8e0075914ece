package serialport

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"facegate/internal/logging"
)

// Action is a hotplug transition.
type Action string

const (
	Attached Action = "attached"
	Detached Action = "detached"
)

// Event reports a serial port appearing or disappearing.
type Event struct {
	Action Action
	Port   Port
}

// Watcher listens for udev netlink events on tty devices.
type Watcher struct {
	logger  *slog.Logger
	handler func(Event)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewWatcher returns a watcher that calls handler for every serial port
// event. handler runs on the watcher goroutine.
func NewWatcher(logger *slog.Logger, handler func(Event)) *Watcher {
	return &Watcher{
		logger:  logging.NewComponentLogger(logger, "serial-watcher"),
		handler: handler,
	}
}

// Start connects to the udev netlink socket and begins delivering events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect netlink socket: %w", err)
	}
	w.conn = conn
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.monitorLoop(ctx, conn, w.quit, w.done)

	w.logger.Info("serial port watcher started",
		logging.String(logging.FieldEventType, "serial_watcher_started"),
	)
	return nil
}

// Stop closes the socket and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	done := w.done
	conn := w.conn
	w.conn, w.quit, w.done = nil, nil, nil
	w.running = false
	w.mu.Unlock()

	<-done
	_ = conn.Close()
	w.logger.Info("serial port watcher stopped",
		logging.String(logging.FieldEventType, "serial_watcher_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit, done chan struct{}) {
	defer close(done)
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, ttyMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			if event, ok := eventFromUEvent(uevent); ok {
				w.logger.Info("serial port changed",
					logging.String(logging.FieldEventType, "serial_port_"+string(event.Action)),
					logging.String(logging.FieldPort, event.Port.Path),
					logging.String("type", string(event.Port.Type)),
				)
				if w.handler != nil {
					w.handler(event)
				}
			}
		case err := <-errs:
			w.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "serial_watcher_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "serial hotplug events may be missed"),
			)
		}
	}
}

// ttyMatcher selects add and remove events of the tty subsystem.
func ttyMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
		},
	})
	return rules
}

func eventFromUEvent(uevent netlink.UEvent) (Event, bool) {
	var action Action
	switch string(uevent.Action) {
	case "add":
		action = Attached
	case "remove":
		action = Detached
	default:
		return Event{}, false
	}
	env := uevent.Env
	if env["DEVNAME"] == "" && env["DEVPATH"] != "" {
		env = maps.Clone(uevent.Env)
		env["DEVNAME"] = path.Base(uevent.Env["DEVPATH"])
	}
	port, ok := portFromEnv(nil, uevent.KObj, env)
	if !ok {
		return Event{}, false
	}
	return Event{Action: action, Port: port}, true
}
