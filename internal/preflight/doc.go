// Package preflight provides readiness checks for the device link and the
// filesystem paths that facegate depends on.
//
// The "facegate doctor" command runs RunAll and renders each Result. The
// port probe lists serial candidates so a misconfigured device.port can be
// corrected without guessing.
package preflight
