package protocol

import "errors"

// Connection-scoped failures. None of them has a wire representation: the
// server closes the connection without writing a response.
var (
	ErrMalformedFrame     = errors.New("protocol: malformed frame")
	ErrUnsupportedCommand = errors.New("protocol: unsupported command")
	ErrUnknownRom         = errors.New("protocol: unknown rom")
	ErrPayloadTooLarge    = errors.New("protocol: payload too large")
	ErrTooManyEntries     = errors.New("protocol: too many rom entries")
	ErrNameTooLong        = errors.New("protocol: rom name too long")
)
