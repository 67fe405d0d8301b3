package tui

import "github.com/charmbracelet/lipgloss"

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	bold    = lipgloss.NewStyle().Bold(true)
)

// Styles exposes the palette to the command line for one-shot summaries.
var Styles = struct {
	Title, Label, Value, Good, Warn lipgloss.Style
}{
	Title: cyan.Bold(true),
	Label: dim,
	Value: white,
	Good:  green,
	Warn:  yellow,
}
