// Package main hosts the facegate CLI entrypoint and command graph.
//
// Each device command builds a short-lived runtime: it resolves the serial
// link, opens the configured driver, starts a session orchestrator, submits
// one job, and renders events through a terminal sink while the job runs.
// Interrupting a running job with Ctrl+C forwards a cancel to the device; a
// second interrupt abandons the wait.
package main
