package theme

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAccent(t *testing.T) {
	tests := []struct {
		name    string
		artwork []byte
		want    string
	}{
		{"no artwork", nil, string(ColorAccent)},
		{"garbage", []byte("not a png"), string(ColorAccent)},
		{"too dark", solidPNG(t, color.RGBA{5, 5, 5, 255}), string(ColorAccent)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accent(tt.artwork); string(got) != tt.want {
				t.Errorf("Accent = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAccentFromArtwork(t *testing.T) {
	got := Accent(solidPNG(t, color.RGBA{200, 40, 40, 255}))
	if len(got) != 7 || got[0] != '#' {
		t.Errorf("Accent = %q, want #rrggbb", got)
	}
}

func TestPlaybackGlyph(t *testing.T) {
	if PlaybackGlyph(true, true) != "▶" || PlaybackGlyph(false, true) != "⏸" || PlaybackGlyph(true, false) != "■" {
		t.Error("unexpected playback glyphs")
	}
}
