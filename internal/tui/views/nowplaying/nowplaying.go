// Package nowplaying renders the track of one media session: title, artist,
// player name and an animated progress bar whose position is extrapolated
// between state reports.
package nowplaying

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/tui/theme"
)

const fps = 30

// FrameInterval is how often the progress bar animates.
const FrameInterval = time.Second / fps

// Track is what the TUI knows about one session.
type Track struct {
	Session    session.ID
	Name       string
	Title      string
	Artist     string
	DurationMs int64
	Artwork    []byte
	Accent     lipgloss.Color

	HasState   bool
	Playing    bool
	PositionMs int64
	Speed      float32
	StateAt    time.Time
}

// NewTrack returns an empty track for id.
func NewTrack(id session.ID) *Track {
	return &Track{Session: id, Accent: theme.ColorAccent, Speed: 1}
}

func (t *Track) ApplyMetadata(md session.Metadata) {
	t.Title = md.Title
	t.Artist = md.Artist
	t.DurationMs = md.DurationMs
	if string(md.Artwork) != string(t.Artwork) {
		t.Artwork = md.Artwork
		t.Accent = theme.Accent(md.Artwork)
	}
}

func (t *Track) ApplyState(st session.State, now time.Time) {
	t.HasState = true
	t.Playing = st.IsPlaying
	t.PositionMs = st.PositionMs
	t.Speed = st.Speed
	t.StateAt = now
}

// Position extrapolates the playback position from the last state report.
func (t *Track) Position(now time.Time) int64 {
	pos := t.PositionMs
	if t.Playing && !t.StateAt.IsZero() {
		elapsed := float64(now.Sub(t.StateAt).Milliseconds())
		pos += int64(elapsed * float64(t.Speed))
	}
	if t.DurationMs > 0 && pos > t.DurationMs {
		pos = t.DurationMs
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// Progress is the played fraction in [0, 1]; 0 when the duration is unknown.
func (t *Track) Progress(now time.Time) float64 {
	if t.DurationMs <= 0 {
		return 0
	}
	return float64(t.Position(now)) / float64(t.DurationMs)
}

// Model renders one track with a spring-animated progress bar.
type Model struct {
	Width int

	bar      progress.Model
	spring   harmonica.Spring
	shown    float64
	velocity float64
}

func New() Model {
	return Model{
		bar: progress.New(
			progress.WithSolidFill(string(theme.ColorAccent)),
			progress.WithoutPercentage(),
		),
		spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 1.0),
	}
}

// Step advances the bar animation one frame toward target.
func (m *Model) Step(target float64) {
	m.shown, m.velocity = m.spring.Update(m.shown, m.velocity, target)
	m.shown = clamp(m.shown)
}

// Jump moves the bar to target without animating, e.g. on a track change.
func (m *Model) Jump(target float64) {
	m.shown = clamp(target)
	m.velocity = 0
}

// Shown is the fraction the bar currently displays.
func (m Model) Shown() float64 { return m.shown }

func (m Model) View(t *Track, now time.Time) string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	if t == nil {
		return theme.StyleBorder.Width(width - 2).Render(
			theme.StyleDimmed.Render("Nothing playing. Waiting for a media session..."),
		)
	}

	accent := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	glyph := lipgloss.NewStyle().
		Foreground(theme.PlaybackColor(t.Playing, t.HasState)).
		Render(theme.PlaybackGlyph(t.Playing, t.HasState))

	title := t.Title
	if title == "" {
		title = session.UnknownText
	}
	artist := t.Artist
	if artist == "" {
		artist = session.UnknownText
	}

	clock := formatMs(t.Position(now))
	if t.DurationMs > 0 {
		clock += " / " + formatMs(t.DurationMs)
	}
	if t.HasState && t.Speed != 1 {
		clock += fmt.Sprintf("  ×%.2g", t.Speed)
	}

	bar := m.bar
	bar.FullColor = string(t.Accent)
	bar.Width = max(width-lipgloss.Width(clock)-8, 10)

	lines := []string{
		glyph + " " + accent.Render(title),
		"  " + artist,
		"  " + theme.StyleDimmed.Render(t.Name),
		"",
		"  " + bar.ViewAs(m.shown) + "  " + clock,
	}
	return theme.StyleBorder.Width(width - 2).Render(strings.Join(lines, "\n"))
}

// formatMs renders a duration as m:ss, or h:mm:ss from one hour on.
func formatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
