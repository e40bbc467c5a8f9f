package catalog

import (
	"fmt"
	"io/fs"
	"strings"
	"unicode/utf8"

	"github.com/nkootstra/romlink/internal/protocol"
)

// Catalog is an immutable, ordered snapshot of the ROMs a server offers.
// A RomID is the position of a name in the snapshot and is only meaningful
// for the Catalog that assigned it.
type Catalog struct {
	entries []protocol.RomEntry
}

// Build assigns ids to names by position. Duplicate names are kept and get
// distinct ids. Build does not touch storage.
func Build(names []string) (*Catalog, error) {
	if len(names) > protocol.MaxRomEntries {
		return nil, fmt.Errorf("%w: %d files, at most %d can be listed", protocol.ErrTooManyEntries, len(names), protocol.MaxRomEntries)
	}

	entries := make([]protocol.RomEntry, len(names))
	for i, name := range names {
		if err := validateName(name); err != nil {
			return nil, fmt.Errorf("rom %d: %w", i, err)
		}
		entries[i] = protocol.RomEntry{ID: protocol.RomID(i), Name: name}
	}
	return &Catalog{entries: entries}, nil
}

// Load lists fsys through filter and builds a Catalog from the result.
func Load(fsys fs.FS, filter Filter) (*Catalog, error) {
	names, err := ListFiles(fsys, filter)
	if err != nil {
		return nil, err
	}
	return Build(names)
}

// List returns every entry in build order. The slice is a copy.
func (c *Catalog) List() []protocol.RomEntry {
	out := make([]protocol.RomEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Resolve returns the file name for id, or ErrUnknownRom when id is outside
// the catalog.
func (c *Catalog) Resolve(id protocol.RomID) (string, error) {
	if int(id) >= len(c.entries) {
		return "", fmt.Errorf("%w: id %d, catalog has %d entries", protocol.ErrUnknownRom, id, len(c.entries))
	}
	return c.entries[id].Name, nil
}

// Len reports the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func validateName(name string) error {
	if len(name) > protocol.MaxNameBytes {
		return fmt.Errorf("%w: %d bytes", protocol.ErrNameTooLong, len(name))
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name %q is not valid UTF-8", name)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("name %q contains NUL", name)
	}
	return nil
}
