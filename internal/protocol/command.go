package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Opcode selects the server behavior for one connection.
type Opcode uint8

const (
	OpList  Opcode = 0x01
	OpFetch Opcode = 0x02
)

// Valid reports whether o is one of the defined opcodes.
func (o Opcode) Valid() bool {
	switch o {
	case OpList, OpFetch:
		return true
	default:
		return false
	}
}

func (o Opcode) String() string {
	switch o {
	case OpList:
		return "LIST"
	case OpFetch:
		return "FETCH"
	default:
		return fmt.Sprintf("OP(0x%02x)", uint8(o))
	}
}

// Command is the decoded 4-byte request frame.
type Command struct {
	Opcode   Opcode
	Argument uint16
}

// NewListCommand returns the LIST command. Its argument is always zero.
func NewListCommand() Command {
	return Command{Opcode: OpList}
}

// NewFetchCommand returns the FETCH command for the given ROM.
func NewFetchCommand(id RomID) Command {
	return Command{Opcode: OpFetch, Argument: uint16(id)}
}

// RomID returns the argument interpreted as a ROM identifier.
func (c Command) RomID() RomID {
	return RomID(c.Argument)
}

// Encode returns the wire form of c.
func (c Command) Encode() []byte {
	return EncodeCommand(c.Opcode, c.Argument)
}

// EncodeCommand lays out a command frame: argument high byte, argument low
// byte, a reserved zero byte, then the opcode.
func EncodeCommand(op Opcode, arg uint16) []byte {
	return []byte{byte(arg >> 8), byte(arg), 0x00, byte(op)}
}

// DecodeCommand parses a command frame. A frame shorter than
// CommandFrameLength is malformed. A complete frame with an opcode outside
// the defined set is returned together with ErrUnsupportedCommand so the
// caller can still report what was received.
func DecodeCommand(b []byte) (Command, error) {
	if len(b) < CommandFrameLength {
		return Command{}, fmt.Errorf("%w: command frame has %d of %d bytes", ErrMalformedFrame, len(b), CommandFrameLength)
	}
	cmd := Command{
		Opcode:   Opcode(b[3]),
		Argument: uint16(b[0])<<8 | uint16(b[1]),
	}
	if !cmd.Opcode.Valid() {
		return cmd, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Opcode)
	}
	return cmd, nil
}

// ReadCommand reads exactly one command frame from r.
func ReadCommand(r io.Reader) (Command, error) {
	var buf [CommandFrameLength]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Command{}, fmt.Errorf("%w: command frame has %d of %d bytes", ErrMalformedFrame, n, CommandFrameLength)
		}
		return Command{}, err
	}
	return DecodeCommand(buf[:])
}
