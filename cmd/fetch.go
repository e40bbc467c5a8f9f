package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/nkootstra/romlink/internal/cache"
	"github.com/nkootstra/romlink/internal/client"
	"github.com/nkootstra/romlink/internal/protocol"
	"github.com/nkootstra/romlink/internal/serialout"
)

var (
	fetchOut    string
	fetchSerial string
	fetchBaud   int
	fetchByName bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <addr> <id|name>",
	Short: "Download a ROM, optionally forwarding it to a serial device",
	Long: `Download a ROM by id or by name.

A reference that parses as a number from 0 to 65535 is taken as an id.
Use --name for ROMs whose file name is all digits. Names are resolved with
a fresh listing on every run since ids change when the server restarts.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.BoolVar(&useWebSocket, "ws", false, "Connect through the HTTP gateway's WebSocket bridge")
	f.StringVarP(&fetchOut, "out", "o", "", "Output file, - for stdout (default: the ROM name)")
	f.StringVar(&fetchSerial, "serial", "", "Serial port to forward the ROM to")
	f.IntVar(&fetchBaud, "baud", protocol.DefaultSerialBaudRate, "Serial baud rate")
	f.BoolVar(&fetchByName, "name", false, "Treat the reference as a name even when it is numeric")
}

func runFetch(cmd *cobra.Command, args []string) error {
	addr, ref := args[0], args[1]
	c, err := newClient(addr)
	if err != nil {
		return err
	}

	entry, fromCache, err := resolveRom(cmd.Context(), c, addr, ref, fetchByName)
	if err != nil {
		return err
	}

	data, err := c.Fetch(cmd.Context(), entry.ID)
	if err != nil {
		if errors.Is(err, client.ErrNoResponse) {
			if fromCache {
				_ = cache.Clear(addr)
			}
			return fmt.Errorf("%w (does rom %d exist? try `romlink list %s`)", err, entry.ID, addr)
		}
		return err
	}

	errOut := cmd.ErrOrStderr()
	if fetchSerial != "" {
		n, err := serialout.Forward(fetchSerial, fetchBaud, data)
		if err != nil {
			return err
		}
		printer.Fprintf(errOut, "forwarded %d bytes to %s at %d baud\n", n, fetchSerial, fetchBaud)
		if fetchOut == "" {
			return nil
		}
	}

	if fetchOut == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	path, err := outputPath(fetchOut, entry)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	printer.Fprintf(errOut, "saved %s (%d bytes)\n", path, len(data))
	return nil
}

// outputPath picks where a fetched ROM goes. Without --out the ROM name is
// used, reduced to its base name so a server cannot pick the directory.
func outputPath(out string, entry protocol.RomEntry) (string, error) {
	if out != "" {
		return homedir.Expand(out)
	}
	name := filepath.Base(entry.Name)
	if entry.Name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		name = fmt.Sprintf("rom-%d.bin", entry.ID)
	}
	return name, nil
}
