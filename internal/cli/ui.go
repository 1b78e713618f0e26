package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	unreadStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selfStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
)

// stdinPiped reports whether stdin is redirected rather than a terminal.
func stdinPiped() bool {
	return !term.IsTerminal(int(os.Stdin.Fd()))
}

// useColor reports whether styled output should be emitted.
func useColor() bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, text string) string {
	if !useColor() {
		return text
	}
	return style.Render(text)
}

// unreadMarker renders the badge shown next to unread items.
func unreadMarker(unread bool) string {
	if !unread {
		return " "
	}
	return render(unreadStyle, "●")
}
