package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nkootstra/romlink/internal/cache"
	"github.com/nkootstra/romlink/internal/client"
	"github.com/nkootstra/romlink/internal/protocol"
)

var useWebSocket bool

// printer formats byte counts with digit grouping.
var printer = message.NewPrinter(language.AmericanEnglish)

func newClient(addr string) (*client.Client, error) {
	transport := client.TransportTCP
	if useWebSocket {
		transport = client.TransportWebSocket
	}
	return client.New(client.Options{Addr: addr, Transport: transport})
}

// listAndCache fetches the catalog and remembers it for name lookups.
func listAndCache(ctx context.Context, c *client.Client, addr string) ([]protocol.RomEntry, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Save(addr, entries); err != nil {
		log.Warn().Err(err).Msg("could not save rom listing cache")
	}
	return entries, nil
}

// resolveRom turns an id or a name into a catalog entry. Ids only hold for
// the server run that assigned them, so a name is always looked up in a
// fresh LIST. The cached listing only supplies a display name for an id.
// With byName set, ref is never parsed as an id.
func resolveRom(ctx context.Context, c *client.Client, addr, ref string, byName bool) (protocol.RomEntry, bool, error) {
	if n, err := strconv.ParseUint(ref, 10, 16); err == nil && !byName {
		id := protocol.RomID(n)
		if l, _ := cache.Load(addr); l != nil {
			for _, e := range l.Roms {
				if e.ID == id {
					return e, true, nil
				}
			}
		}
		return protocol.RomEntry{ID: id}, false, nil
	}

	entries, err := listAndCache(ctx, c, addr)
	if err != nil {
		return protocol.RomEntry{}, false, err
	}
	e, ok := client.FindByName(entries, ref)
	if !ok {
		return protocol.RomEntry{}, false, fmt.Errorf("no rom named %q on %s", ref, addr)
	}
	return e, false, nil
}
