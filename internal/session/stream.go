package session

import (
	"fmt"
	"log/slog"
	"sync"

	"facegate/internal/device"
	"facegate/internal/events"
	"facegate/internal/logging"
)

const streamBuffer = 32

type streamEvent struct {
	hint   string
	pose   device.FacePose
	isPose bool
	result func()
	ack    chan struct{}
}

// stream carries gateway callbacks of one job to a single pump goroutine.
// Callbacks arriving after close are dropped.
type stream struct {
	sink   events.Sink
	logger *slog.Logger
	hints  hintFilter
	poses  *logging.PoseSampler

	mu     sync.Mutex
	closed bool
	events chan streamEvent
	done   chan struct{}

	// results and panicked are owned by the pump until done is closed.
	results  int
	panicked any
}

func (o *Orchestrator) openStream(j *job) *stream {
	s := &stream{
		sink:   o.sink,
		logger: j.logger,
		poses:  logging.NewPoseSampler(device.PoseCount, 2),
		events: make(chan streamEvent, streamBuffer),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *stream) push(ev streamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

func (s *stream) hint(text string) {
	if !s.push(streamEvent{hint: text}) {
		s.logger.Debug("dropping late hint", logging.String("hint", text))
	}
}

func (s *stream) progress(pose device.FacePose) {
	if !s.push(streamEvent{pose: pose, isPose: true}) {
		s.logger.Debug("dropping late progress", logging.String("pose", pose.String()))
	}
}

// result hands handle to the pump and blocks until it ran, so the gateway
// callback does not return before the result was classified.
func (s *stream) result(handle func()) bool {
	ack := make(chan struct{})
	if !s.push(streamEvent{result: handle, ack: ack}) {
		s.logger.Debug("dropping late result")
		return false
	}
	<-ack
	return true
}

// close stops accepting events and waits for the pump to drain.
func (s *stream) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *stream) pump() {
	defer close(s.done)
	for ev := range s.events {
		s.handle(ev)
	}
}

func (s *stream) handle(ev streamEvent) {
	switch {
	case ev.result != nil:
		defer close(ev.ack)
		s.results++
		s.invoke(ev.result)
		s.hints.reset()
		s.poses.Reset()
	case ev.isPose:
		s.sink.Progress(ev.pose)
		if s.poses.Capture() {
			s.logger.Info("enroll pose captured",
				logging.String("pose", ev.pose.String()),
				logging.Int("captured", s.poses.Captured()),
				logging.Int("total", device.PoseCount),
			)
		}
	default:
		if s.hints.allow(ev.hint) {
			s.sink.Log(ev.hint)
		}
	}
}

func (s *stream) invoke(handle func()) {
	defer func() {
		if r := recover(); r != nil {
			s.panicked = r
			s.logger.Error("result handler panicked", logging.String("panic", fmt.Sprint(r)))
		}
	}()
	handle()
}

// hintFilter drops a hint equal to the previous one.
type hintFilter struct {
	last string
	seen bool
}

func (f *hintFilter) allow(text string) bool {
	if f.seen && f.last == text {
		return false
	}
	f.last, f.seen = text, true
	return true
}

func (f *hintFilter) reset() {
	f.last, f.seen = "", false
}
