// Package sim provides an in-process Gateway that behaves like a face
// authentication module without any hardware.
//
// The simulator is scripted: a Script chooses which face is in front of the
// camera, the hint sequences, forced statuses per operation, loop length, and
// step timing. Device-side users and settings persist to a JSON file so the
// CLI behaves consistently across invocations. Templates are derived from the
// identity they belong to, so matching reduces to byte equality.
//
// Importing the package registers the driver as "simulator".
package sim
