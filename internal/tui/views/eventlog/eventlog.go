// Package eventlog provides a scrollable overlay of everything the TUI
// received from the relay or sent to it.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/tui/theme"
)

const maxEntries = 200

// Kind tags a log line.
type Kind string

const (
	KindMetadata Kind = "meta"
	KindState    Kind = "stat"
	KindControl  Kind = "ctl"
	KindConn     Kind = "conn"
	KindError    Kind = "err"
)

type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model holds the log and its scroll offset, counted from the newest line.
type Model struct {
	Entries []Entry
	Offset  int
}

func New() Model {
	return Model{}
}

// Add appends an entry, drops the oldest beyond the cap and scrolls to
// the bottom.
func (m *Model) Add(at time.Time, kind Kind, message string) {
	m.Entries = append(m.Entries, Entry{Time: at, Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// AddEvent logs a relayed event.
func (m *Model) AddEvent(at time.Time, ev session.Event) {
	switch ev := ev.(type) {
	case session.Metadata:
		art := ""
		if ev.HasArtwork() {
			art = fmt.Sprintf(" +art %dB", len(ev.Artwork))
		}
		m.Add(at, KindMetadata, fmt.Sprintf("%s %q by %q %dms%s", ev.SessionID, ev.Title, ev.Artist, ev.DurationMs, art))
	case session.State:
		verb := "paused"
		if ev.IsPlaying {
			verb = "playing"
		}
		m.Add(at, KindState, fmt.Sprintf("%s %s @%dms x%g", ev.SessionID, verb, ev.PositionMs, ev.Speed))
	}
}

func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-8, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing received yet.")
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := len(m.Entries) - m.Offset
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(string(e.Kind))
		msg := e.Message
		if limit := innerW - 23; limit > 3 && len(msg) > limit {
			msg = msg[:limit-3] + "..."
		}
		lines = append(lines, ts+" "+kind+" "+msg)
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindMetadata:
		return theme.ColorAccent
	case KindState:
		return theme.ColorPlaying
	case KindControl:
		return theme.ColorBright
	case KindConn:
		return theme.ColorWarning
	case KindError:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}
