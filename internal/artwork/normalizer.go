// Package artwork turns host-provided cover art into the fixed-size PNG
// carried by metadata events.
package artwork

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/boxes-ltd/imaging"
)

// Size is the edge length in pixels of every normalized artwork image.
const Size = 150

// ErrEncode is returned when artwork cannot be produced. Callers omit the
// artwork and keep the event.
var ErrEncode = errors.New("artwork encoding failed")

// Normalize resizes img to exactly Size x Size, ignoring aspect ratio, and
// encodes it as PNG. Panics raised by image code are returned as ErrEncode.
func Normalize(img image.Image) (out []byte, err error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrEncode)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrEncode, b)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrEncode, r)
		}
	}()

	resized := imaging.Resize(img, Size, Size, imaging.Linear)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
