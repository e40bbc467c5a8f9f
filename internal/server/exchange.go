package server

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/nkootstra/romlink/internal/protocol"
)

// Event types published on Server.Events.
const (
	EventListening = "listening"
	EventExchange  = "exchange"
	EventStale     = "stale"
)

// Outcome labels for an exchange, used in logs and metrics.
const (
	OutcomeOK          = "ok"
	OutcomeMalformed   = "malformed"
	OutcomeUnsupported = "unsupported"
	OutcomeUnknownRom  = "unknown_rom"
	OutcomeTooLarge    = "too_large"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// Event is something the server reports to an observer such as the TUI.
type Event struct {
	Type     string
	Addr     string
	Exchange *Exchange
	Path     string
}

// Exchange records one served connection.
type Exchange struct {
	ID        string
	Remote    string
	Transport string
	Opcode    protocol.Opcode
	RomID     protocol.RomID
	RomName   string
	Bytes     int
	Duration  time.Duration
	Time      time.Time
	Err       error
}

// Outcome classifies Err.
func (e Exchange) Outcome() string {
	switch {
	case e.Err == nil:
		return OutcomeOK
	case errors.Is(e.Err, protocol.ErrMalformedFrame):
		return OutcomeMalformed
	case errors.Is(e.Err, protocol.ErrUnsupportedCommand):
		return OutcomeUnsupported
	case errors.Is(e.Err, protocol.ErrUnknownRom):
		return OutcomeUnknownRom
	case errors.Is(e.Err, protocol.ErrPayloadTooLarge):
		return OutcomeTooLarge
	case isTimeout(e.Err):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
