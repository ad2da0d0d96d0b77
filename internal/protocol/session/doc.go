// Package session owns host<->device link pacing primitives.
//
// Ownership boundary:
// - link timing defaults (packet wait, reconnect delays, poll period)
// - reconnect backoff
// - outbound gate and queue
package session
