//go:build !linux

package control

import (
	"errors"
	"fmt"
)

const DefaultUinputPath = ""

var errNoUinput = errors.New("uinput is only available on linux")

// UinputSink is unavailable on this platform.
type UinputSink struct{}

func OpenUinput(path string) (*UinputSink, error) {
	return nil, fmt.Errorf("open uinput: %w", errNoUinput)
}

func (s *UinputSink) KeyDown(KeyCode) error { return errNoUinput }

func (s *UinputSink) KeyUp(KeyCode) error { return errNoUinput }

func (s *UinputSink) Close() error { return nil }
