package server

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// WatchDir watches the ROM directory and reports when it no longer matches
// the catalog. The catalog itself is never rebuilt: ids handed out to
// clients must keep meaning the same file until the server restarts.
// WatchDir returns once the watch is established; it stops when ctx is done.
func (s *Server) WatchDir(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op == fsnotify.Chmod {
					continue
				}
				s.markStale(ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Str("dir", dir).Msg("rom directory watch error")
			}
		}
	}()
	return nil
}

func (s *Server) markStale(ev fsnotify.Event) {
	if s.stale.Swap(true) {
		s.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("rom directory changed")
		return
	}
	s.log.Warn().
		Str("path", ev.Name).
		Str("op", ev.Op.String()).
		Msg("rom directory changed; catalog is a startup snapshot, restart to serve the change")
	s.emit(Event{Type: EventStale, Path: ev.Name})
}
