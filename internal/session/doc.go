// Package session runs device jobs one at a time.
//
// An Orchestrator owns the session state machine (Idle, Connecting, Running,
// Cancelling, Disconnecting), a cancel flag, and one worker goroutine. Submit
// claims the session with a compare-and-swap, so a second caller is rejected
// with ErrBusy instead of queueing behind the first. Each job connects,
// invokes exactly one gateway operation, pumps its callbacks through a per-job
// channel, and always disconnects before the session returns to Idle.
//
// In server flow mode faceprints are extracted on the device and matched
// against the local template store; in local mode the device stores and
// matches users itself. The facade methods pick the right job kind.
package session
