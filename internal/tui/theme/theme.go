// Package theme provides the Lip Gloss palette and reusable styles for the
// now-playing TUI. It is a leaf package with no internal imports.
package theme

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"

	"github.com/cenkalti/dominantcolor"
	"github.com/charmbracelet/lipgloss"
)

// Playback colors.
var (
	ColorPlaying = lipgloss.Color("#22c55e")
	ColorPaused  = lipgloss.Color("#d97706")
	ColorStopped = lipgloss.Color("#6b7280")
)

// ColorAccent is used for the progress bar when no artwork is known.
var ColorAccent = lipgloss.Color("#a855f7")

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// minLuma keeps accents readable on dark terminals.
const minLuma = 60

// Accent returns the dominant color of a PNG artwork, falling back to
// ColorAccent when the artwork is missing, undecodable or too dark.
func Accent(artwork []byte) lipgloss.Color {
	if len(artwork) == 0 {
		return ColorAccent
	}
	img, _, err := image.Decode(bytes.NewReader(artwork))
	if err != nil {
		return ColorAccent
	}
	c := dominantcolor.Find(img)
	luma := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
	if luma < minLuma {
		return ColorAccent
	}
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

// PlaybackColor returns the color for a playing flag.
func PlaybackColor(playing, known bool) lipgloss.Color {
	switch {
	case !known:
		return ColorStopped
	case playing:
		return ColorPlaying
	default:
		return ColorPaused
	}
}

// PlaybackGlyph returns a Unicode glyph for a playing flag.
func PlaybackGlyph(playing, known bool) string {
	switch {
	case !known:
		return "■"
	case playing:
		return "▶"
	default:
		return "⏸"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
