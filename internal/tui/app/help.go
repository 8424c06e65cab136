package app

import (
	"github.com/charmbracelet/glamour"
)

const helpMarkdown = `# mediarelay

Shows what the host's media players are playing and sends transport
commands to the player that holds media focus.

| Key | Action |
|-----|--------|
| space | play / pause |
| n | next track |
| p | previous track |
| h, l | browse sessions (pins the view) |
| f | follow the focused session again |
| r | reconnect after another listener took over |
| e | event log (j/k to scroll) |
| q | quit |

The relay streams to one listener at a time. Opening the TUI takes the
stream from any other listener, and a newer listener takes it from the TUI.
`

// renderHelp renders the help overlay, falling back to the raw markdown.
func renderHelp(width int) string {
	if width < 40 {
		width = 40
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return out
}
