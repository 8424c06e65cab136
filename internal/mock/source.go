// Package mock simulates a desktop with several media players so the relay
// can be run and demonstrated without a real session bus.
package mock

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/session"
)

type track struct {
	title      string
	artist     string
	durationMs int64
	tint       color.RGBA
}

type mockPlayer struct {
	info       session.Info
	tracks     []track
	trackIdx   int
	playing    bool
	positionMs int64
	rate       float64
	pattern    string
	present    bool
	// churnEvery toggles presence every n ticks; 0 keeps the player on the bus.
	churnEvery int
}

func (p *mockPlayer) current() track { return p.tracks[p.trackIdx] }

func (p *mockPlayer) state() monitor.RawPlaybackState {
	status := monitor.StatusPaused
	if p.playing {
		status = monitor.StatusPlaying
	}
	return monitor.RawPlaybackState{Status: status, PositionMs: p.positionMs, Rate: p.rate}
}

func (p *mockPlayer) metadata() monitor.RawMetadata {
	t := p.current()
	return monitor.RawMetadata{
		Title:      t.title,
		Artist:     t.artist,
		DurationMs: t.durationMs,
		Artwork:    cover(t.tint),
	}
}

// cover draws a two-tone gradient so every track has distinct artwork.
func cover(tint color.RGBA) image.Image {
	const size = 64
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			f := float64(x+y) / float64(2*size)
			img.Set(x, y, color.RGBA{
				R: uint8(float64(tint.R) * (1 - f/2)),
				G: uint8(float64(tint.G) * (1 - f/2)),
				B: uint8(float64(tint.B) * (1 - f/2)),
				A: 255,
			})
		}
	}
	return img
}

// Options tune the simulation.
type Options struct {
	Tick time.Duration
	Seed int64
}

// Source is a simulated host. It satisfies monitor.Source and doubles as a
// control.KeySink so commands visibly change the simulated players.
type Source struct {
	opts   Options
	logger *zap.Logger
	focus  func() (session.Info, bool)

	mu      sync.Mutex
	players []*mockPlayer
	subs    map[session.ID]*sub
	watcher *watch
	tick    int
	rnd     *rand.Rand
}

var (
	_ monitor.Source  = (*Source)(nil)
	_ control.KeySink = (*Source)(nil)
)

func NewSource(opts Options, logger *zap.Logger) *Source {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		opts:    opts,
		logger:  logger.Named("mock"),
		players: defaultPlayers(),
		subs:    make(map[session.ID]*sub),
		rnd:     rand.New(rand.NewSource(opts.Seed)),
	}
}

func defaultPlayers() []*mockPlayer {
	return []*mockPlayer{
		{
			info:    session.Info{ID: "org.mpris.MediaPlayer2.mock.radio", BusName: "org.mpris.MediaPlayer2.mock.radio", Identity: "Mock Radio", Process: "mock-radio"},
			pattern: "steady", playing: true, rate: 1, present: true,
			tracks: []track{
				{"Night Drive", "The Synthetics", 214_000, color.RGBA{R: 220, G: 60, B: 120, A: 255}},
				{"Harbour Lights", "Low Tide", 187_000, color.RGBA{R: 40, G: 120, B: 220, A: 255}},
				{"Paper Planes", "Kite Club", 242_000, color.RGBA{R: 240, G: 190, B: 40, A: 255}},
			},
		},
		{
			info:    session.Info{ID: "org.mpris.MediaPlayer2.mock.podcast", BusName: "org.mpris.MediaPlayer2.mock.podcast", Identity: "Mock Podcasts", Process: "mock-podcasts"},
			pattern: "pauser", rate: 1.5, present: true,
			tracks: []track{
				{"Episode 12: Queues", "Systems Hour", 3_120_000, color.RGBA{R: 90, G: 200, B: 110, A: 255}},
			},
		},
		{
			info:    session.Info{ID: "org.mpris.MediaPlayer2.mock.browser", BusName: "org.mpris.MediaPlayer2.mock.browser", Identity: "Mock Browser", Process: "mock-browser"},
			pattern: "skipper", rate: 1, churnEvery: 40,
			tracks: []track{
				{"", "", 0, color.RGBA{R: 128, G: 128, B: 128, A: 255}},
				{"Lo-fi Beats", "", 3_600_000, color.RGBA{R: 160, G: 100, B: 200, A: 255}},
			},
		},
	}
}

func (s *Source) Name() string { return "mock" }

// SetFocus selects which simulated player receives keys. Without it keys go
// to the first present player.
func (s *Source) SetFocus(focus func() (session.Info, bool)) {
	s.focus = focus
}

// Run advances the simulation every tick until ctx is cancelled.
func (s *Source) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	s.logger.Info("mock players started", zap.Int("players", len(s.players)))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

type watch struct {
	src      *Source
	onChange func([]session.Info)
}

func (w *watch) Close() error {
	w.src.mu.Lock()
	defer w.src.mu.Unlock()
	if w.src.watcher != w {
		return session.ErrNotSubscribed
	}
	w.src.watcher = nil
	return nil
}

type sub struct {
	src        *Source
	id         session.ID
	cb         monitor.Callbacks
	superseded bool
}

func (u *sub) Close() error {
	u.src.mu.Lock()
	defer u.src.mu.Unlock()
	if u.src.subs[u.id] == u {
		delete(u.src.subs, u.id)
		return nil
	}
	if u.superseded {
		return nil
	}
	return session.ErrNotSubscribed
}

func (s *Source) WatchSessions(ctx context.Context, onChange func([]session.Info)) (session.Handle, error) {
	w := &watch{src: s, onChange: onChange}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return w, nil
}

func (s *Source) ActiveSessions(ctx context.Context) ([]session.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presentLocked(), nil
}

func (s *Source) presentLocked() []session.Info {
	var infos []session.Info
	for _, p := range s.players {
		if p.present {
			infos = append(infos, p.info)
		}
	}
	return infos
}

func (s *Source) Subscribe(ctx context.Context, info session.Info, cb monitor.Callbacks) (session.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.playerLocked(info.ID); p == nil || !p.present {
		return nil, fmt.Errorf("subscribe %s: no such player", info.ID)
	}
	u := &sub{src: s, id: info.ID, cb: cb}
	if prev := s.subs[info.ID]; prev != nil {
		prev.superseded = true
	}
	s.subs[info.ID] = u
	return u, nil
}

func (s *Source) Metadata(ctx context.Context, id session.ID) (monitor.RawMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(id)
	if p == nil {
		return monitor.RawMetadata{}, fmt.Errorf("metadata %s: no such player", id)
	}
	return p.metadata(), nil
}

func (s *Source) PlaybackState(ctx context.Context, id session.ID) (monitor.RawPlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(id)
	if p == nil {
		return monitor.RawPlaybackState{}, fmt.Errorf("playback state %s: no such player", id)
	}
	return p.state(), nil
}

func (s *Source) playerLocked(id session.ID) *mockPlayer {
	for _, p := range s.players {
		if p.info.ID == id {
			return p
		}
	}
	return nil
}

// notification is a callback to run once the lock is released.
type notification func()

// Step advances the simulation by one tick.
func (s *Source) Step() {
	s.mu.Lock()
	s.tick++
	var pending []notification
	setChanged := false
	for _, p := range s.players {
		if p.churnEvery > 0 && s.tick%p.churnEvery == 0 {
			p.present = !p.present
			setChanged = true
			if !p.present {
				delete(s.subs, p.info.ID)
			}
			continue
		}
		if !p.present {
			continue
		}
		pending = append(pending, s.advanceLocked(p)...)
	}
	if setChanged && s.watcher != nil {
		onChange, infos := s.watcher.onChange, s.presentLocked()
		pending = append(pending, func() { onChange(infos) })
	}
	s.mu.Unlock()

	for _, n := range pending {
		n()
	}
}

func (s *Source) advanceLocked(p *mockPlayer) []notification {
	tickMs := int64(float64(s.opts.Tick.Milliseconds()) * p.rate)
	stateChanged := false
	trackChanged := false

	switch p.pattern {
	case "pauser":
		if s.rnd.Intn(10) == 0 {
			p.playing = !p.playing
			stateChanged = true
		}
	case "skipper":
		if p.playing && s.rnd.Intn(8) == 0 {
			s.skipLocked(p, 1)
			trackChanged = true
		}
		if !p.playing && s.rnd.Intn(4) == 0 {
			p.playing = true
			stateChanged = true
		}
	}

	if p.playing {
		p.positionMs += tickMs
		if d := p.current().durationMs; d > 0 && p.positionMs >= d {
			s.skipLocked(p, 1)
			trackChanged = true
		}
	}

	return s.notifyLocked(p, trackChanged, stateChanged || trackChanged)
}

func (s *Source) skipLocked(p *mockPlayer, delta int) {
	n := len(p.tracks)
	p.trackIdx = ((p.trackIdx+delta)%n + n) % n
	p.positionMs = 0
}

func (s *Source) notifyLocked(p *mockPlayer, metadata, state bool) []notification {
	u := s.subs[p.info.ID]
	if u == nil {
		return nil
	}
	var out []notification
	if metadata && u.cb.OnMetadata != nil {
		md, cb := p.metadata(), u.cb.OnMetadata
		out = append(out, func() { cb(md) })
	}
	if state && u.cb.OnPlaybackState != nil {
		st, cb := p.state(), u.cb.OnPlaybackState
		out = append(out, func() { cb(st) })
	}
	return out
}

// KeyDown is a no-op; simulated players act on key release.
func (s *Source) KeyDown(control.KeyCode) error { return nil }

// KeyUp applies a media key to the focused simulated player.
func (s *Source) KeyUp(k control.KeyCode) error {
	var target session.ID
	if s.focus != nil {
		if info, ok := s.focus(); ok {
			target = info.ID
		}
	}

	s.mu.Lock()
	p := s.playerLocked(target)
	if p == nil || !p.present {
		p = nil
		for _, c := range s.players {
			if c.present {
				p = c
				break
			}
		}
	}
	if p == nil {
		s.mu.Unlock()
		return fmt.Errorf("no mock player present")
	}

	var pending []notification
	switch k {
	case control.KeyPlayPause:
		p.playing = !p.playing
		pending = s.notifyLocked(p, false, true)
	case control.KeyNextSong:
		s.skipLocked(p, 1)
		pending = s.notifyLocked(p, true, true)
	case control.KeyPreviousSong:
		s.skipLocked(p, -1)
		pending = s.notifyLocked(p, true, true)
	default:
		s.mu.Unlock()
		return fmt.Errorf("mock player: unsupported key %s", k)
	}
	id := p.info.ID
	s.mu.Unlock()

	s.logger.Debug("key applied", zap.String("session", string(id)), zap.Stringer("key", k))
	for _, n := range pending {
		n()
	}
	return nil
}
