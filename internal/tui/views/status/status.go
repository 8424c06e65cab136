package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/media-relay/mediarelay/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Endpoint  string
	Sessions  int
	Following bool
	Notice    string
	Alert     bool
	Width     int
}

func New(endpoint string) Model {
	return Model{Endpoint: endpoint, Following: true}
}

// SetNotice shows msg after the counters. alert colors it as an error.
func (m *Model) SetNotice(msg string, alert bool) {
	m.Notice = msg
	m.Alert = alert
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Listening")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	sessions := fmt.Sprintf("%d sessions", m.Sessions)
	if m.Sessions == 1 {
		sessions = "1 session"
	}
	mode := "pinned"
	if m.Following {
		mode = "following focus"
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + theme.StyleDimmed.Render(m.Endpoint) + sep + sessions + sep + mode
	if m.Notice != "" {
		color := theme.ColorDimmed
		if m.Alert {
			color = theme.ColorWarning
		}
		content += sep + lipgloss.NewStyle().Foreground(color).Render(m.Notice)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
