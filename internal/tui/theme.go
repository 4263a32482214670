package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// The TUI must stay readable on both light and dark terminal backgrounds,
// so colors are adaptive throughout.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted   = ac("240", "243")
	colorAccent  = ac("26", "39")
	colorOK      = ac("28", "40")
	colorDanger  = ac("124", "203")
	colorWarning = ac("130", "214")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle     = lipgloss.NewStyle().Foreground(colorOK)
	dangerStyle = lipgloss.NewStyle().Foreground(colorDanger)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorAccent).
			Padding(1, 2)
)

// connDot renders the connectivity indicator. termenv picks the closest
// color the terminal supports.
func connDot(online bool) string {
	p := termenv.ColorProfile()
	if online {
		return termenv.String("●").Foreground(p.Color("#2da44e")).String()
	}
	return termenv.String("○").Foreground(p.Color("#cf222e")).String()
}
