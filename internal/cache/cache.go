package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/nkootstra/romlink/internal/protocol"
)

const cacheFileName = "listings.json"

// configDirOverride is set during tests to avoid polluting the real config.
var configDirOverride string

// now is replaced in tests.
var now = time.Now

// Listing is the last catalog seen from one server.
type Listing struct {
	Roms      []protocol.RomEntry `json:"roms"`
	FetchedAt time.Time           `json:"fetchedAt"`
}

// file maps server addresses to their listings.
type file map[string]Listing

func configDir(create bool) (string, error) {
	var dir string
	if configDirOverride != "" {
		dir = configDirOverride
	} else {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "romlink")
	}
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func cachePath(create bool) (string, error) {
	dir, err := configDir(create)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheFileName), nil
}

func read() (file, error) {
	path, err := cachePath(false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file{}, nil
		}
		return nil, err
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil || f == nil {
		return file{}, nil // treat corrupt file as empty
	}
	return f, nil
}

func write(f file) error {
	path, err := cachePath(true)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Save records roms as the current listing for addr.
func Save(addr string, roms []protocol.RomEntry) error {
	f, err := read()
	if err != nil {
		return err
	}
	f[addr] = Listing{Roms: roms, FetchedAt: now()}
	return write(f)
}

// Load returns the listing for addr. Returns nil (with no error) when there
// is none or it is older than the freshness window: the server may have
// restarted with a different directory, and ids are only stable for one
// server run.
func Load(addr string) (*Listing, error) {
	f, err := read()
	if err != nil {
		return nil, err
	}
	l, ok := f[addr]
	if !ok {
		return nil, nil
	}
	window := time.Duration(protocol.CacheFreshnessSeconds) * time.Second
	if now().Sub(l.FetchedAt) > window {
		return nil, nil
	}
	return &l, nil
}

// Clear forgets addr. Clearing an unknown address is not an error.
func Clear(addr string) error {
	f, err := read()
	if err != nil {
		return err
	}
	if _, ok := f[addr]; !ok {
		return nil
	}
	delete(f, addr)
	return write(f)
}

// ClearAll removes the cache file.
func ClearAll() error {
	path, err := cachePath(false)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
