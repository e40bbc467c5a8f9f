package tui

import (
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/nkootstra/romlink/internal/protocol"
)

// maxNameWidth is how much of a ROM name fits in the catalog panel.
const maxNameWidth = 32

// FormatUptime formats seconds as "Xh Ym Zs".
func FormatUptime(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// GatewayURL turns a listen address like ":8080" into a browsable URL.
func GatewayURL(httpAddr string) string {
	if httpAddr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(httpAddr)
	if err != nil {
		return "http://" + httpAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// serverCard is what the left panel and the narrow view show about the
// running server.
type serverCard struct {
	addr      string
	httpAddr  string
	listening bool
	roms      int
	stale     bool
	stalePath string
	uptime    int
	served    int
	failed    int
	bytes     int64
}

// renderServerCard renders the server summary. spin is shown while the
// listener is not up yet.
func renderServerCard(c serverCard, spin string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("  %s\n\n", titleStyle.Render("romlink")))

	status := StyledServerStatus(c.listening)
	if !c.listening {
		status = spin + " " + status
	}
	b.WriteString(fmt.Sprintf("  %s  %s\n", labelStyle.Render("Status  "), status))
	if c.addr != "" {
		b.WriteString(fmt.Sprintf("  %s  %s\n", labelStyle.Render("Address "), addrStyle.Render(c.addr)))
	}
	if url := GatewayURL(c.httpAddr); url != "" {
		b.WriteString(fmt.Sprintf("  %s  %s\n", labelStyle.Render("Gateway "), Hyperlink(url, url)))
	}
	b.WriteString(fmt.Sprintf("  %s  %d\n", labelStyle.Render("ROMs    "), c.roms))
	b.WriteString(fmt.Sprintf("  %s  %s\n", labelStyle.Render("Uptime  "), FormatUptime(c.uptime)))
	b.WriteString(fmt.Sprintf("  %s  %d ok, %d failed, %d bytes\n",
		labelStyle.Render("Served  "), c.served, c.failed, c.bytes))

	if c.stale {
		b.WriteString("\n")
		b.WriteString("  " + warnStyle.Render("Directory changed, restart to serve it") + "\n")
		if c.stalePath != "" {
			b.WriteString("  " + dimStyle.Render(ansi.Truncate(c.stalePath, maxNameWidth+8, "…")) + "\n")
		}
	}
	return b.String()
}

// renderCatalog lists the served ROMs with their ids.
func renderCatalog(entries []protocol.RomEntry) string {
	if len(entries) == 0 {
		return dimStyle.Render("  No ROMs in catalog") + "\n"
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			dimStyle.Render(fmt.Sprintf("%5d", e.ID)),
			ansi.Truncate(e.Name, maxNameWidth, "…"),
		))
	}
	return b.String()
}
