// Package serialout forwards fetched ROMs to a microcontroller over a UART.
//
// The receiving side reads a 2-byte big-endian size and then that many ROM
// bytes, so the frame on the wire is exactly a FETCH response.
package serialout

import (
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/nkootstra/romlink/internal/protocol"
)

// Port is the subset of serial.Port used here.
type Port interface {
	io.WriteCloser
	Drain() error
}

type opener func(name string, mode *serial.Mode) (Port, error)

var openPort opener = func(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Mode returns 8N1 at baud.
func Mode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = protocol.DefaultSerialBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Forward writes rom, length-prefixed, to the serial port and waits until
// it has been transmitted. It returns the number of bytes written.
func Forward(portName string, baud int, rom []byte) (int, error) {
	frame, err := protocol.EncodeRomPayload(rom)
	if err != nil {
		return 0, err
	}

	p, err := openPort(portName, Mode(baud))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", portName, err)
	}
	defer p.Close()

	n, err := writeFull(p, frame)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", portName, err)
	}
	if err := p.Drain(); err != nil {
		return n, fmt.Errorf("drain %s: %w", portName, err)
	}
	return n, nil
}

// writeFull loops because some drivers accept partial writes.
func writeFull(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates the serial ports on this machine.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return out, nil
}
