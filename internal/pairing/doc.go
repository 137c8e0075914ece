// Package pairing manages the ECDSA P-256 keys used to pair the host with a
// face authentication module.
//
// The host key is generated on first use and stored as PEM. After pairing,
// the module's public key is stored next to it so later sessions can verify
// device signatures. Public keys travel over the wire as 64 raw bytes (X then
// Y) and signatures as 64 raw bytes (r then s) over a SHA-256 digest.
package pairing
