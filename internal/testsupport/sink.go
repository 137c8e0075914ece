package testsupport

import (
	"slices"
	"sync"

	"facegate/internal/device"
	"facegate/internal/events"
)

// EventKind names a recorded sink call.
type EventKind string

const (
	EventLog          EventKind = "log"
	EventStatus       EventKind = "status"
	EventSessionStart EventKind = "session_start"
	EventSessionEnd   EventKind = "session_end"
	EventUsers        EventKind = "users"
	EventProgress     EventKind = "progress"
	EventLoop         EventKind = "loop"
)

// Event is one recorded sink call.
type Event struct {
	Kind     EventKind
	Text     string
	Severity events.Severity
	Users    []string
	Pose     device.FacePose
	Running  bool
}

// RecordingSink records every event it receives. It is safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *RecordingSink) add(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *RecordingSink) Log(text string) { s.add(Event{Kind: EventLog, Text: text}) }

func (s *RecordingSink) Status(text string, severity events.Severity) {
	s.add(Event{Kind: EventStatus, Text: text, Severity: severity})
}

func (s *RecordingSink) SessionStart(title string) {
	s.add(Event{Kind: EventSessionStart, Text: title})
}

func (s *RecordingSink) SessionEnd() { s.add(Event{Kind: EventSessionEnd}) }

func (s *RecordingSink) UserListChanged(ids []string) {
	s.add(Event{Kind: EventUsers, Users: slices.Clone(ids)})
}

func (s *RecordingSink) Progress(pose device.FacePose) {
	s.add(Event{Kind: EventProgress, Pose: pose})
}

func (s *RecordingSink) LoopToggled(running bool) {
	s.add(Event{Kind: EventLoop, Running: running})
}

// Events returns a copy of everything recorded so far.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Texts returns the text of every event of kind, in order.
func (s *RecordingSink) Texts(kind EventKind) []string {
	var out []string
	for _, ev := range s.Events() {
		if ev.Kind == kind {
			out = append(out, ev.Text)
		}
	}
	return out
}

// Count reports how many events of kind were recorded.
func (s *RecordingSink) Count(kind EventKind) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// LastStatus returns the most recent status event.
func (s *RecordingSink) LastStatus() (Event, bool) {
	evs := s.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Kind == EventStatus {
			return evs[i], true
		}
	}
	return Event{}, false
}

var _ events.Sink = (*RecordingSink)(nil)
