package tui

import (
	"fmt"

	"github.com/charmbracelet/x/ansi"

	"github.com/nkootstra/romlink/internal/protocol"
	"github.com/nkootstra/romlink/internal/server"
)

const romColumnWidth = 30

// RenderTrafficLine produces one line of the traffic log for an exchange.
func RenderTrafficLine(ex server.Exchange) string {
	timeStr := dimStyle.Render(ex.Time.Format("15:04:05"))

	rom := ""
	if ex.Opcode == protocol.OpFetch {
		rom = fmt.Sprintf("#%d", ex.RomID)
		if ex.RomName != "" {
			rom += " " + ex.RomName
		}
	}
	rom = ansi.Truncate(rom, romColumnWidth, "…")
	paddedRom := rom + spaces(romColumnWidth-ansi.StringWidth(rom))

	transport := ""
	if ex.Transport == server.TransportWebSocket {
		transport = dimStyle.Render(" ws")
	}

	return fmt.Sprintf("  %s  %s  %s  %s  %s%s",
		timeStr,
		StyledOpcode(ex.Opcode.String()),
		paddedRom,
		StyledOutcome(ex.Outcome()),
		dimStyle.Render(fmt.Sprintf("%6dB %5dms", ex.Bytes, ex.Duration.Milliseconds())),
		transport,
	)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%*s", n, "")
}
