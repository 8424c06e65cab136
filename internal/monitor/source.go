package monitor

import (
	"context"
	"errors"
	"image"

	"github.com/media-relay/mediarelay/internal/session"
)

// ErrPermissionDenied is returned by a Source when the host refuses access
// to session information. The monitor absorbs it: the failure is logged and
// counted and the affected session is skipped.
var ErrPermissionDenied = errors.New("permission denied by host")

// Source defines the interface for a host playback-session provider (e.g.
// the MPRIS session bus on Linux, or the simulated players of the mock
// source). Each implementation knows how to enumerate the sessions the host
// currently exposes and how to register for their change notifications.
//
// Callbacks registered through WatchSessions and Subscribe may be invoked
// from any goroutine the host uses for dispatch. The monitor forwards them
// onto its own goroutine, so implementations never need to serialize them.
type Source interface {
	// Name returns a short lowercase identifier for this source, e.g.
	// "mpris" or "mock". Surfaced in logs and in /api/health.
	Name() string

	// WatchSessions registers onChange to be called with the complete
	// current session set every time the host adds or removes a session.
	// The returned handle cancels the watch.
	WatchSessions(ctx context.Context, onChange func([]session.Info)) (session.Handle, error)

	// ActiveSessions returns the session set as it is right now.
	ActiveSessions(ctx context.Context) ([]session.Info, error)

	// Subscribe registers cb for media-properties and playback-info
	// changes of one session. Closing the returned handle unregisters both
	// callbacks. Closing a handle whose session already vanished returns
	// session.ErrNotSubscribed.
	Subscribe(ctx context.Context, info session.Info, cb Callbacks) (session.Handle, error)

	// Metadata and PlaybackState read the current values of a session
	// directly. The monitor uses them to announce a session's state as
	// soon as it is attached.
	Metadata(ctx context.Context, id session.ID) (RawMetadata, error)
	PlaybackState(ctx context.Context, id session.ID) (RawPlaybackState, error)
}

// Callbacks receives the change notifications of one subscribed session.
type Callbacks struct {
	OnMetadata      func(RawMetadata)
	OnPlaybackState func(RawPlaybackState)
}

// PlaybackStatus is the host's transport status of a session.
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "Playing"
	StatusPaused  PlaybackStatus = "Paused"
	StatusStopped PlaybackStatus = "Stopped"
)

// RawMetadata is the media-properties snapshot reported by the host before
// normalization. Empty strings mean the host did not report the field.
type RawMetadata struct {
	Title      string
	Artist     string
	DurationMs int64

	// ArtURL references the cover art when the host reports it by
	// location (file://, data: or http(s)://).
	ArtURL string

	// Artwork is set when the host hands over a decoded bitmap. It takes
	// precedence over ArtURL.
	Artwork image.Image
}

// RawPlaybackState is the playback-info snapshot reported by the host.
type RawPlaybackState struct {
	Status     PlaybackStatus
	PositionMs int64

	// Rate is the playback speed multiplier. Zero means the host did not
	// report one and is read as normal speed.
	Rate float64
}

// Publisher receives every event the listener produces.
type Publisher interface {
	Publish(session.Event)
}

// ArtworkLoader resolves an art URL to normalized PNG bytes.
type ArtworkLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}
