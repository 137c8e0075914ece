// Package events defines the callbacks facegate uses to drive a user
// interface and a dispatcher that delivers them from a single goroutine.
package events

import (
	"slices"
	"sync"

	"facegate/internal/device"
)

// Severity colours a status message.
type Severity int

const (
	Info Severity = iota
	Progress
	Success
	Failure
)

func (s Severity) String() string {
	switch s {
	case Progress:
		return "progress"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "info"
	}
}

// Sink receives user-facing events. Implementations may assume calls arrive
// from one goroutine at a time when wrapped by a Dispatcher.
type Sink interface {
	Log(text string)
	Status(text string, severity Severity)
	// SessionStart disables user actions while a job runs.
	SessionStart(title string)
	// SessionEnd re-enables user actions.
	SessionEnd()
	UserListChanged(identities []string)
	Progress(pose device.FacePose)
	LoopToggled(running bool)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(string)               {}
func (Nop) Status(string, Severity)  {}
func (Nop) SessionStart(string)      {}
func (Nop) SessionEnd()              {}
func (Nop) UserListChanged([]string) {}
func (Nop) Progress(device.FacePose) {}
func (Nop) LoopToggled(bool)         {}

// Dispatcher queues events without bound and delivers them in order on its
// own goroutine, so producers never block on the user interface.
type Dispatcher struct {
	target Sink

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewDispatcher starts delivering to target.
func NewDispatcher(target Sink) *Dispatcher {
	if target == nil {
		target = Nop{}
	}
	d := &Dispatcher{target: target, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, deliver := range batch {
			deliver()
		}
	}
}

func (d *Dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// Flush blocks until every event queued before the call was delivered.
func (d *Dispatcher) Flush() {
	delivered := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.queue = append(d.queue, func() { close(delivered) })
	d.cond.Signal()
	d.mu.Unlock()
	<-delivered
}

// Close delivers pending events and stops the dispatcher. Later events are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) Log(text string) {
	d.enqueue(func() { d.target.Log(text) })
}

func (d *Dispatcher) Status(text string, severity Severity) {
	d.enqueue(func() { d.target.Status(text, severity) })
}

func (d *Dispatcher) SessionStart(title string) {
	d.enqueue(func() { d.target.SessionStart(title) })
}

func (d *Dispatcher) SessionEnd() {
	d.enqueue(func() { d.target.SessionEnd() })
}

func (d *Dispatcher) UserListChanged(identities []string) {
	ids := slices.Clone(identities)
	d.enqueue(func() { d.target.UserListChanged(ids) })
}

func (d *Dispatcher) Progress(pose device.FacePose) {
	d.enqueue(func() { d.target.Progress(pose) })
}

func (d *Dispatcher) LoopToggled(running bool) {
	d.enqueue(func() { d.target.LoopToggled(running) })
}

var (
	_ Sink = Nop{}
	_ Sink = (*Dispatcher)(nil)
)
