package protocol

import "errors"

var (
	ErrUnknownType   = errors.New("protocol: unknown message type")
	ErrShortPayload  = errors.New("protocol: payload too short")
	ErrTypeMismatch  = errors.New("protocol: message type mismatch")
	ErrInvalidBuffer = errors.New("protocol: invalid display buffer")
)
