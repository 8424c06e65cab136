package monitor

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/media-relay/mediarelay/internal/artwork"
	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/session"
)

// Listener converts raw host notifications into session events and hands
// each one to the publisher. Every notification produces exactly one event.
type Listener struct {
	pub      Publisher
	art      ArtworkLoader
	recorder *health.Recorder
	logger   *zap.Logger
}

// NewListener creates a listener. art may be nil, in which case only
// bitmaps supplied directly by the host become artwork.
func NewListener(pub Publisher, art ArtworkLoader, recorder *health.Recorder, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		pub:      pub,
		art:      art,
		recorder: recorder,
		logger:   logger.Named("listener"),
	}
}

// OnMetadata publishes a Metadata event for id. Artwork failures drop the
// artwork only. Remote artwork that is not cached yet is omitted; the
// player's next metadata change for the same URL carries it.
func (l *Listener) OnMetadata(ctx context.Context, id session.ID, raw RawMetadata) {
	ev := session.Metadata{
		SessionID:  id,
		Title:      cleanText(raw.Title),
		Artist:     cleanText(raw.Artist),
		DurationMs: raw.DurationMs,
	}
	if ev.DurationMs < 0 {
		ev.DurationMs = 0
	}
	ev.Artwork = l.artwork(ctx, id, raw)
	l.pub.Publish(ev)
}

// OnPlaybackState publishes a State event for id.
func (l *Listener) OnPlaybackState(id session.ID, raw RawPlaybackState) {
	ev := session.State{
		SessionID:  id,
		IsPlaying:  raw.Status == StatusPlaying,
		PositionMs: raw.PositionMs,
		Speed:      float32(raw.Rate),
	}
	if ev.PositionMs < 0 {
		ev.PositionMs = 0
	}
	if raw.Rate == 0 {
		ev.Speed = 1
	}
	l.pub.Publish(ev)
}

func (l *Listener) artwork(ctx context.Context, id session.ID, raw RawMetadata) []byte {
	var (
		png []byte
		err error
	)
	switch {
	case raw.Artwork != nil:
		png, err = artwork.Normalize(raw.Artwork)
	case raw.ArtURL != "" && l.art != nil:
		png, err = l.art.Load(ctx, raw.ArtURL)
	default:
		return nil
	}
	if errors.Is(err, artwork.ErrPending) {
		l.logger.Debug("artwork pending",
			zap.String("session", string(id)),
			zap.String("url", raw.ArtURL))
		return nil
	}
	if err != nil {
		l.recorder.Record(health.ArtworkEncoding, err)
		l.logger.Warn("artwork dropped",
			zap.String("session", string(id)),
			zap.String("url", raw.ArtURL),
			zap.Error(err))
		return nil
	}
	return png
}

// cleanText trims and NFC-normalizes host text; empty becomes UnknownText.
func cleanText(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return session.UnknownText
	}
	return s
}
