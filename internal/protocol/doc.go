// Package protocol owns the device wire contract.
//
// Ownership boundary:
// - message type registry (bit-exact codes shared with firmware)
// - host command builders
// - device response decoders
//
// Framing lives in the frame subpackage; tlv carries host command journals.
package protocol
