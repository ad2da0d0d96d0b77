// Package watch owns the device link.
//
// Ownership boundary:
// - connection state machine and transport handle
//
// - receive loop, paced sender, housekeeping poll
//
// - frame dispatch, mode stack, button routing
//
// - host command intake (silent mode, raw frames)
//
// Lifecycle order:
// - Start -> Connecting -> Connected <-> Connecting -> Disconnecting -> Disconnected
//
// - Disconnected after Shutdown is terminal.
//
// Errors never leave the Manager; collaborators only see the tri-state
// Indicator.
package watch
