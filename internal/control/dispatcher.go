// Package control turns transport commands into media key presses.
package control

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/health"
)

// ErrNotImplemented is returned for command names the dispatcher does not
// know. No key event is emitted for them.
var ErrNotImplemented = errors.New("not implemented")

// Command is a transport command a consumer can send.
type Command string

const (
	PlayPause Command = "play-pause"
	Next      Command = "next"
	Previous  Command = "previous"
)

// Commands lists every supported command in display order.
var Commands = []Command{PlayPause, Next, Previous}

// KeyCode is a Linux input event key code.
type KeyCode uint16

const (
	KeyNextSong     KeyCode = 163
	KeyPlayPause    KeyCode = 164
	KeyPreviousSong KeyCode = 165
)

func (k KeyCode) String() string {
	switch k {
	case KeyPlayPause:
		return "KEY_PLAYPAUSE"
	case KeyNextSong:
		return "KEY_NEXTSONG"
	case KeyPreviousSong:
		return "KEY_PREVIOUSSONG"
	default:
		return fmt.Sprintf("KEY_%d", uint16(k))
	}
}

var commandKeys = map[Command]KeyCode{
	PlayPause: KeyPlayPause,
	Next:      KeyNextSong,
	Previous:  KeyPreviousSong,
}

// Key returns the media key bound to c.
func (c Command) Key() (KeyCode, bool) {
	k, ok := commandKeys[c]
	return k, ok
}

// ParseCommand maps a command name to a Command. Unknown names yield
// ErrNotImplemented.
func ParseCommand(name string) (Command, error) {
	c := Command(name)
	if _, ok := commandKeys[c]; !ok {
		return "", fmt.Errorf("command %q: %w", name, ErrNotImplemented)
	}
	return c, nil
}

// KeySink receives synthetic key presses. Implementations deliver them to
// whatever currently holds media focus.
type KeySink interface {
	KeyDown(KeyCode) error
	KeyUp(KeyCode) error
}

// Dispatcher sends commands as a key-down/key-up pair. It does not wait for
// any acknowledgement from the player.
type Dispatcher struct {
	sink     KeySink
	recorder *health.Recorder
	logger   *zap.Logger
}

func NewDispatcher(sink KeySink, recorder *health.Recorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sink: sink, recorder: recorder, logger: logger.Named("control")}
}

// Send presses and releases the key bound to c.
func (d *Dispatcher) Send(c Command) error {
	key, ok := c.Key()
	if !ok {
		return d.unknown(string(c))
	}
	if err := d.sink.KeyDown(key); err != nil {
		return fmt.Errorf("key down %s: %w", key, err)
	}
	if err := d.sink.KeyUp(key); err != nil {
		return fmt.Errorf("key up %s: %w", key, err)
	}
	d.logger.Debug("command sent", zap.String("command", string(c)), zap.Stringer("key", key))
	return nil
}

// SendNamed parses name and sends it.
func (d *Dispatcher) SendNamed(name string) error {
	c, err := ParseCommand(name)
	if err != nil {
		return d.unknown(name)
	}
	return d.Send(c)
}

func (d *Dispatcher) unknown(name string) error {
	err := fmt.Errorf("command %q: %w", name, ErrNotImplemented)
	d.recorder.Record(health.UnknownCommand, err)
	d.logger.Info("unknown command", zap.String("command", name))
	return err
}
