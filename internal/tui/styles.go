package tui

import (
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")) // green
	addrStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))            // yellow
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))            // red
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray

	opcodeStyles = map[string]lipgloss.Style{
		"LIST":  lipgloss.NewStyle().Foreground(lipgloss.Color("6")), // cyan
		"FETCH": lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
	}

	outcomeStyles = map[string]lipgloss.Style{
		"ok":          lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
		"malformed":   warnStyle,
		"unsupported": warnStyle,
		"unknown_rom": warnStyle,
		"timeout":     warnStyle,
		"too_large":   errorStyle,
		"error":       errorStyle,
	}
)

func focusedBorderStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("4")) // blue
}

func blurredBorderStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")) // gray
}

// panelTitleStyle renders a panel title (placed in the border top line).
var panelTitleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("4")).
	Bold(true)

// Hyperlink wraps displayText in an OSC 8 hyperlink escape sequence so
// terminals that support it render it as a clickable link.
func Hyperlink(url, displayText string) string {
	return ansi.SetHyperlink(url) + displayText + ansi.ResetHyperlink()
}

// StyledOpcode returns an opcode name padded to 9 chars and colored.
func StyledOpcode(op string) string {
	padded := fmt.Sprintf("%-9s", op)
	if style, ok := opcodeStyles[op]; ok {
		return style.Render(padded)
	}
	return dimStyle.Render(padded)
}

// StyledOutcome colors an exchange outcome.
func StyledOutcome(outcome string) string {
	if style, ok := outcomeStyles[outcome]; ok {
		return style.Render(outcome)
	}
	return outcome
}

// StyledServerStatus returns the listening indicator.
func StyledServerStatus(listening bool) string {
	if listening {
		return titleStyle.Render("Listening")
	}
	return warnStyle.Render("Starting...")
}
