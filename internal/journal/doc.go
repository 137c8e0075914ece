// Package journal records finished session jobs in a SQLite database.
//
// Every job the orchestrator runs ends in exactly one journal row holding
// its kind, identity, result, user-facing message, and timing. The CLI reads
// the journal for `facegate history`. The schema is embedded and versioned;
// a database written by a different schema version is rejected with
// ErrSchemaMismatch rather than migrated.
package journal
