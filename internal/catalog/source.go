package catalog

import (
	"fmt"
	"io/fs"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// ListFiles returns the regular files at the root of fsys that pass filter,
// in lexical order. Subdirectories are skipped, and so are names that are
// not valid UTF-8, with a warning. The order is what gives
// every file its RomID, so it must not depend on the host file system.
func ListFiles(fsys fs.FS, filter Filter) ([]string, error) {
	dirEntries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list rom directory: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !isRegular(fsys, de) {
			continue
		}
		if !utf8.ValidString(de.Name()) {
			log.Warn().Str("name", fmt.Sprintf("%q", de.Name())).Msg("skipping rom with a name that is not valid UTF-8")
			continue
		}
		if !filter.Match(de.Name()) {
			continue
		}
		names = append(names, de.Name())
	}
	return names, nil
}

// isRegular follows symlinks so a linked ROM is listed like a plain file.
func isRegular(fsys fs.FS, de fs.DirEntry) bool {
	if de.Type()&fs.ModeSymlink == 0 {
		return de.Type().IsRegular()
	}
	info, err := fs.Stat(fsys, de.Name())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
