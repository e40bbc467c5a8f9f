package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeRomPayload serializes a FETCH response: a 2-byte length followed by
// the raw ROM bytes. Data longer than MaxPayloadBytes is rejected rather
// than truncated.
func EncodeRomPayload(data []byte) ([]byte, error) {
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(data), MaxPayloadBytes)
	}
	buf := make([]byte, 0, 2+len(data))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(data)))
	return append(buf, data...), nil
}

// DecodeRomPayload reads a FETCH response from r. A stream that ends before
// the declared length is satisfied is ErrMalformedFrame; a zero-length
// payload is only returned when the server actually sent one.
func DecodeRomPayload(r io.Reader) ([]byte, error) {
	length, err := readUint16(r, "payload length")
	if err != nil {
		return nil, err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, shortRead(err, "payload")
	}
	return data, nil
}
