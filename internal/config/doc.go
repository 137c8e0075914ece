// Package config loads, normalizes, and validates facegate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// FACEGATE_PORT and FACEGATE_FLOW_MODE. The Config type centralizes every knob
// the CLI and the session orchestrator need: which device driver to open, how
// to reach the serial port, which flow mode decides where templates live, and
// where the template database, job journal, and pairing keys are stored.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
