// Package device defines the contract between facegate and a face
// authentication module attached over a serial link.
//
// The Gateway interface mirrors the blocking operations a device library
// exposes: connect and disconnect, enroll and authenticate (optionally in a
// loop), template extraction and matching, user management, and
// authentication settings. Operations report progress through hint, progress,
// and result callbacks that may run on driver goroutines.
//
// Templates are opaque buffers owned by whoever extracted or cloned them and
// are released explicitly. Drivers register themselves by name so the CLI can
// open whichever driver the configuration selects.
package device
