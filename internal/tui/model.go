package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/nkootstra/romlink/internal/protocol"
	"github.com/nkootstra/romlink/internal/server"
)

const (
	maxTrafficEntries = 100
	minSplitWidth     = 100
	leftPanelPct      = 40
)

type focusedPanel int

const (
	panelLeft focusedPanel = iota
	panelRight
)

// Options configures the dashboard.
type Options struct {
	Events   <-chan server.Event
	Roms     []protocol.RomEntry
	HTTPAddr string
	// OnQuit is called once when the user quits, typically to cancel the
	// server's context.
	OnQuit func()
}

// Model is the root Bubble Tea model for the server dashboard.
type Model struct {
	events   <-chan server.Event
	onQuit   func()
	roms     []protocol.RomEntry
	card     serverCard
	traffic  []string
	spinner  spinner.Model
	catalogV viewport.Model // left panel: scrollable catalog
	trafficV viewport.Model // right panel: scrollable traffic log
	ready    bool
	quitting bool
	width    int
	height   int

	focus     focusedPanel
	showSplit bool
}

// NewModel creates the dashboard.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	return Model{
		events:  opts.Events,
		onQuit:  opts.OnQuit,
		roms:    opts.Roms,
		card:    serverCard{httpAddr: opts.HTTPAddr, roms: len(opts.Roms)},
		traffic: make([]string, 0, maxTrafficEntries),
		spinner: s,
		focus:   panelRight,
	}
}

func (m Model) renderFooter() string {
	hint := "  q quit"
	if m.card.httpAddr != "" {
		hint += " | b open gateway"
	}
	if m.showSplit {
		hint += " | tab switch panel"
		if m.ready && m.focus == panelRight && len(m.traffic) > 0 {
			hint += fmt.Sprintf(" | ↑↓ scroll | %3.0f%%", m.trafficV.ScrollPercent()*100)
		}
	}
	return dimStyle.Render(hint)
}

// syncLayout recalculates viewport dimensions based on terminal size.
func (m *Model) syncLayout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	m.showSplit = m.width >= minSplitWidth
	if !m.showSplit {
		return
	}

	leftW, rightW, innerH := m.panelSizes()
	cardLines := strings.Count(renderServerCard(m.card, ""), "\n") + 1
	catalogH := innerH - cardLines
	if catalogH < 1 {
		catalogH = 1
	}

	if !m.ready {
		m.catalogV = viewport.New(viewport.WithWidth(leftW), viewport.WithHeight(catalogH))
		m.trafficV = viewport.New(viewport.WithWidth(rightW), viewport.WithHeight(innerH))
		m.trafficV.MouseWheelEnabled = true
		m.trafficV.MouseWheelDelta = 3
		m.ready = true
		m.updateCatalogContent()
		m.updateTrafficContent()
	} else {
		m.catalogV.SetWidth(leftW)
		m.catalogV.SetHeight(catalogH)
		m.trafficV.SetWidth(rightW)
		m.trafficV.SetHeight(innerH)
	}
}

// panelSizes returns inner widths of both panels and their shared inner
// height.
func (m Model) panelSizes() (left, right, height int) {
	const footerLines = 1
	const border = 2

	leftWidth := m.width * leftPanelPct / 100
	left = max(leftWidth-border, 1)
	right = max(m.width-leftWidth-border, 1)
	height = max(m.height-footerLines-border, 1)
	return left, right, height
}

// Init starts the spinner, the uptime ticker and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickEvery(), listenForEvents(m.events))
}

// Update handles messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "b":
			if url := GatewayURL(m.card.httpAddr); url != "" {
				return m, openBrowser(url + "/roms")
			}
		case "tab":
			if m.showSplit {
				if m.focus == panelLeft {
					m.focus = panelRight
				} else {
					m.focus = panelLeft
				}
			}
		}

	case openBrowserMsg:

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncLayout()

	case tickMsg:
		if m.card.listening {
			m.card.uptime++
		}
		cmds = append(cmds, tickEvery())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case serverEventMsg:
		m.handleEvent(msg.event)
		cmds = append(cmds, listenForEvents(m.events))
	}

	if m.ready && m.showSplit {
		var cmd tea.Cmd
		if m.focus == panelRight {
			m.trafficV, cmd = m.trafficV.Update(msg)
		} else {
			m.catalogV, cmd = m.catalogV.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleEvent(ev server.Event) {
	switch ev.Type {
	case server.EventListening:
		m.card.listening = true
		m.card.addr = ev.Addr

	case server.EventStale:
		m.card.stale = true
		m.card.stalePath = ev.Path

	case server.EventExchange:
		if ev.Exchange == nil {
			return
		}
		ex := *ev.Exchange
		if ex.Err == nil {
			m.card.served++
		} else {
			m.card.failed++
		}
		m.card.bytes += int64(ex.Bytes)

		m.traffic = append(m.traffic, RenderTrafficLine(ex))
		if len(m.traffic) > maxTrafficEntries {
			m.traffic = m.traffic[len(m.traffic)-maxTrafficEntries:]
		}
		if m.ready {
			m.updateTrafficContent()
			m.trafficV.GotoBottom()
		}
	}
}

func (m *Model) updateTrafficContent() {
	if !m.ready {
		return
	}
	content := strings.Join(m.traffic, "\n")
	if len(m.traffic) == 0 {
		content = dimStyle.Render(" Waiting for connections...")
	}
	m.trafficV.SetContent(content)
}

func (m *Model) updateCatalogContent() {
	if !m.ready {
		return
	}
	m.catalogV.SetContent(renderCatalog(m.roms))
}

// View renders the dashboard.
func (m Model) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	var content string
	if m.showSplit {
		content = m.renderSplitView()
	} else {
		content = m.renderNarrowView()
	}

	if m.height > 0 {
		content = lipgloss.PlaceVertical(m.height, lipgloss.Top, content)
	}

	v := tea.NewView(content)
	v.AltScreen = true
	v.MouseMode = tea.MouseModeCellMotion
	return v
}

// renderNarrowView shows the server card and the most recent traffic lines.
func (m Model) renderNarrowView() string {
	parts := []string{renderServerCard(m.card, m.spinner.View())}

	recent := m.traffic
	if room := m.height - strings.Count(parts[0], "\n") - 3; room > 0 && len(recent) > room {
		recent = recent[len(recent)-room:]
	}
	if len(recent) > 0 {
		parts = append(parts, strings.Join(recent, "\n"))
	}
	parts = append(parts, "", m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderSplitView() string {
	leftW, rightW, innerH := m.panelSizes()

	var leftContent, rightContent string
	if m.ready {
		leftContent = lipgloss.JoinVertical(lipgloss.Left,
			renderServerCard(m.card, m.spinner.View()),
			m.catalogV.View(),
		)
		rightContent = m.trafficV.View()
	} else {
		leftContent = renderServerCard(m.card, m.spinner.View())
		rightContent = dimStyle.Render(" Initializing...")
	}

	leftStyle := blurredBorderStyle()
	rightStyle := blurredBorderStyle()
	leftTitle := dimStyle.Render(" Server ")
	rightTitle := dimStyle.Render(" Traffic ")
	if m.focus == panelLeft {
		leftStyle = focusedBorderStyle()
		leftTitle = panelTitleStyle.Render(" Server ")
	} else {
		rightStyle = focusedBorderStyle()
		rightTitle = panelTitleStyle.Render(" Traffic ")
	}

	leftPanel := injectBorderTitle(leftStyle.Width(leftW).Height(innerH).Render(leftContent), leftTitle)
	rightPanel := injectBorderTitle(rightStyle.Width(rightW).Height(innerH).Render(rightContent), rightTitle)

	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderFooter())
}

// injectBorderTitle replaces the start of the top border, just after the
// corner, with title.
func injectBorderTitle(rendered string, title string) string {
	lines := strings.SplitN(rendered, "\n", 2)
	runes := []rune(lines[0])
	titleRunes := []rune(title)
	if len(runes) < len(titleRunes)+2 {
		return rendered
	}
	copy(runes[1:], titleRunes)
	lines[0] = string(runes)
	return strings.Join(lines, "\n")
}

// ViewString returns the dashboard content as a plain string (for testing).
func (m Model) ViewString() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderServerCard(m.card, ""))
	b.WriteString("\n")
	b.WriteString(renderCatalog(m.roms))
	for _, line := range m.traffic {
		b.WriteString(line + "\n")
	}
	return b.String()
}
