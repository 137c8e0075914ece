// Package templatestore keeps the host-side face template database used in
// server flow mode.
//
// A Store is an insertion-ordered list of (template, identity) entries with
// unique identities and a scan cursor that the match engine walks from the
// start on every match. Mutations are guarded by a read/write mutex so
// listings never observe a half-applied change.
//
// Persistence is best effort: Load and Save log failures as warnings instead
// of returning them, a missing file means an empty database, and writes go
// through a temporary file renamed into place while holding an advisory lock
// so concurrent processes never interleave.
package templatestore
