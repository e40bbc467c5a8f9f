package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/nkootstra/romlink/internal/protocol"
)

// ErrNoResponse means the server closed the stream without sending a single
// byte. The protocol has no error frame, so this is how an unknown id or an
// unsupported command looks from the client side.
var ErrNoResponse = errors.New("client: server closed connection without a response")

// RequestList sends LIST on rw and decodes the reply.
func RequestList(rw io.ReadWriter) ([]protocol.RomEntry, error) {
	if _, err := rw.Write(protocol.NewListCommand().Encode()); err != nil {
		return nil, fmt.Errorf("send LIST: %w", err)
	}
	cr := &countingReader{r: rw}
	entries, err := protocol.DecodeRomList(cr)
	if err != nil {
		return nil, responseError(cr, err)
	}
	return entries, nil
}

// RequestRom sends FETCH for id on rw and returns the ROM bytes.
func RequestRom(rw io.ReadWriter, id protocol.RomID) ([]byte, error) {
	if _, err := rw.Write(protocol.NewFetchCommand(id).Encode()); err != nil {
		return nil, fmt.Errorf("send FETCH %d: %w", id, err)
	}
	cr := &countingReader{r: rw}
	data, err := protocol.DecodeRomPayload(cr)
	if err != nil {
		return nil, responseError(cr, err)
	}
	return data, nil
}

// FindByName returns the first entry called name.
func FindByName(entries []protocol.RomEntry, name string) (protocol.RomEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return protocol.RomEntry{}, false
}

func responseError(cr *countingReader, err error) error {
	if cr.n == 0 && errors.Is(err, protocol.ErrMalformedFrame) {
		return fmt.Errorf("%w: %w", ErrNoResponse, err)
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
