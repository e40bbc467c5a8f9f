package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// RomID is the zero-based position of a ROM in the server's catalog.
type RomID uint16

// RomEntry pairs a ROM identifier with its file name.
type RomEntry struct {
	ID   RomID  `json:"id"`
	Name string `json:"name"`
}

// EncodeRomList serializes a LIST response: a 2-byte count, then for each
// entry its id, the byte length of its name and the name bytes.
func EncodeRomList(entries []RomEntry) ([]byte, error) {
	if len(entries) > MaxRomEntries {
		return nil, fmt.Errorf("%w: %d", ErrTooManyEntries, len(entries))
	}

	size := 2
	for _, e := range entries {
		if len(e.Name) > MaxNameBytes {
			return nil, fmt.Errorf("%w: %d bytes for rom %d", ErrNameTooLong, len(e.Name), e.ID)
		}
		size += 4 + len(e.Name)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint16(buf, uint16(e.ID))
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.Name)))
		buf = append(buf, e.Name...)
	}
	return buf, nil
}

// DecodeRomList reads a LIST response from r. It never returns a partial
// list: running out of bytes anywhere is ErrMalformedFrame.
func DecodeRomList(r io.Reader) ([]RomEntry, error) {
	count, err := readUint16(r, "rom count")
	if err != nil {
		return nil, err
	}

	entries := make([]RomEntry, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := readUint16(r, "rom id")
		if err != nil {
			return nil, err
		}
		nameLen, err := readUint16(r, "rom name length")
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, shortRead(err, "rom name")
		}
		entries = append(entries, RomEntry{ID: RomID(id), Name: string(name)})
	}
	return entries, nil
}

func readUint16(r io.Reader, field string) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, shortRead(err, field)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// shortRead maps end-of-stream conditions onto ErrMalformedFrame and keeps
// the underlying io error matchable.
func shortRead(err error, field string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s: %w", ErrMalformedFrame, field, err)
	}
	return fmt.Errorf("read %s: %w", field, err)
}
