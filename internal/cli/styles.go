package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/mailsweep/internal/decide"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	mutedColor   = lipgloss.Color("#6B7280")
	accentColor  = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	successColor = lipgloss.Color("#10B981")

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	okStyle    = lipgloss.NewStyle().Foreground(successColor)
	warnStyle  = lipgloss.NewStyle().Foreground(accentColor)
	errStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// renderStatus colors a decision status for table output.
func renderStatus(s decide.Status) string {
	switch s {
	case decide.StatusWillDelete:
		return errStyle.Render(string(s))
	case decide.StatusWillArchive:
		return warnStyle.Render(string(s))
	case decide.StatusProtected, decide.StatusLikelyLegitimate:
		return okStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

// percent formats a [0, 1] confidence as a whole percentage.
func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// shortID abbreviates generated IDs for tables.
func shortID(id string) string {
	if len(id) > 8 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}
