package mpris

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/session"
)

// ErrNoPlayer is returned when a key arrives while no player is attached.
var ErrNoPlayer = errors.New("no player has media focus")

var keyMethods = map[control.KeyCode]string{
	control.KeyPlayPause:    "PlayPause",
	control.KeyNextSong:     "Next",
	control.KeyPreviousSong: "Previous",
}

// KeySink delivers media keys to the player holding media focus by calling
// its MPRIS Player method on key release.
type KeySink struct {
	src    *Source
	focus  func() (session.Info, bool)
	logger *zap.Logger
}

var _ control.KeySink = (*KeySink)(nil)

// NewKeySink routes keys to the session returned by focus, typically
// session.Registry.Focused.
func NewKeySink(src *Source, focus func() (session.Info, bool), logger *zap.Logger) *KeySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeySink{src: src, focus: focus, logger: logger.Named("mpris-keys")}
}

// KeyDown is a no-op: MPRIS methods act on release.
func (k *KeySink) KeyDown(control.KeyCode) error { return nil }

func (k *KeySink) KeyUp(code control.KeyCode) error {
	method, ok := keyMethods[code]
	if !ok {
		return fmt.Errorf("no player method for %s", code)
	}
	info, ok := k.focus()
	if !ok {
		return ErrNoPlayer
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := k.src.call(ctx, info.ID, method); err != nil {
		return fmt.Errorf("%s on %s: %w", method, info.ID, err)
	}
	k.logger.Debug("player method called",
		zap.String("session", string(info.ID)),
		zap.String("method", method))
	return nil
}
