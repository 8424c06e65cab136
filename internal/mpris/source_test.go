package mpris

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/session"
)

type fakeBus struct {
	mu       sync.Mutex
	names    []string
	owners   map[string]string
	identity map[string]string
	props    map[string]map[string]dbus.Variant
	calls    []string
	callErr  error
	listErr  error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		owners:   make(map[string]string),
		identity: make(map[string]string),
		props:    make(map[string]map[string]dbus.Variant),
	}
}

func (b *fakeBus) addPlayer(name, owner, identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names = append(b.names, name)
	b.owners[name] = owner
	b.owners[owner] = owner
	b.identity[name] = identity
}

func (b *fakeBus) ListNames(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]string{"org.freedesktop.DBus", ":1.1"}, b.names...), nil
}

func (b *fakeBus) NameOwner(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner, ok := b.owners[name]
	if !ok {
		return "", errors.New("name has no owner")
	}
	return owner, nil
}

func (b *fakeBus) ProcessID(ctx context.Context, name string) (uint32, error) {
	return 0, errors.New("unsupported")
}

func (b *fakeBus) Property(ctx context.Context, dest, iface, prop string) (dbus.Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if iface == rootIface && prop == "Identity" {
		return dbus.MakeVariant(b.identity[dest]), nil
	}
	v, ok := b.props[b.owners[dest]][prop]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return v, nil
}

func (b *fakeBus) Properties(ctx context.Context, dest, iface string) (map[string]dbus.Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]dbus.Variant)
	for k, v := range b.props[b.owners[dest]] {
		out[k] = v
	}
	return out, nil
}

func (b *fakeBus) Call(ctx context.Context, dest, method string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, dest+" "+method)
	return b.callErr
}

func (b *fakeBus) setProps(owner string, props map[string]dbus.Variant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[owner] = props
}

type recorder struct {
	metadata []monitor.RawMetadata
	states   []monitor.RawPlaybackState
}

func (r *recorder) callbacks() monitor.Callbacks {
	return monitor.Callbacks{
		OnMetadata:      func(m monitor.RawMetadata) { r.metadata = append(r.metadata, m) },
		OnPlaybackState: func(s monitor.RawPlaybackState) { r.states = append(r.states, s) },
	}
}

func propsChanged(sender string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Sender: sender,
		Path:   objectPath,
		Name:   sigPropertiesChanged,
		Body:   []interface{}{playerIface, changed, []string{}},
	}
}

const vlc = "org.mpris.MediaPlayer2.vlc"

func TestActiveSessions(t *testing.T) {
	b := newFakeBus()
	b.addPlayer("org.mpris.MediaPlayer2.spotify", ":1.20", "Spotify")
	b.addPlayer(vlc, ":1.10", "VLC media player")
	s := newSource(b, nil)

	infos, err := s.ActiveSessions(context.Background())
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d sessions, want 2", len(infos))
	}
	if infos[0].ID != "org.mpris.MediaPlayer2.spotify" || infos[1].ID != vlc {
		t.Errorf("sessions not sorted: %v", infos)
	}
	if infos[1].Identity != "VLC media player" || infos[1].DisplayName() != "VLC media player" {
		t.Errorf("identity = %q", infos[1].Identity)
	}
}

func TestActiveSessionsError(t *testing.T) {
	b := newFakeBus()
	b.listErr = errors.New("disconnected")
	if _, err := newSource(b, nil).ActiveSessions(context.Background()); !errors.Is(err, b.listErr) {
		t.Errorf("err = %v", err)
	}
}

func TestPropertiesChangedRoutesToSubscriber(t *testing.T) {
	b := newFakeBus()
	b.addPlayer(vlc, ":1.10", "VLC")
	b.setProps(":1.10", map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Paused"),
		"Position":       dbus.MakeVariant(int64(0)),
		"Rate":           dbus.MakeVariant(1.0),
	})
	s := newSource(b, nil)
	rec := &recorder{}
	if _, err := s.Subscribe(context.Background(), session.Info{ID: vlc, BusName: vlc}, rec.callbacks()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	s.handleSignal(propsChanged(":1.10", map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title": dbus.MakeVariant("Song"),
		}),
	}))
	b.setProps(":1.10", map[string]dbus.Variant{"Position": dbus.MakeVariant(int64(7_000_000))})
	s.handleSignal(propsChanged(":1.10", map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	}))
	s.handleSignal(&dbus.Signal{Sender: ":1.10", Path: objectPath, Name: sigSeeked, Body: []interface{}{int64(9_000_000)}})

	if len(rec.metadata) != 1 || rec.metadata[0].Title != "Song" {
		t.Errorf("metadata callbacks = %+v", rec.metadata)
	}
	want := []monitor.RawPlaybackState{
		{Status: monitor.StatusPlaying, PositionMs: 7000, Rate: 1},
		{Status: monitor.StatusPlaying, PositionMs: 9000, Rate: 1},
	}
	if len(rec.states) != len(want) {
		t.Fatalf("state callbacks = %+v, want %+v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Errorf("state %d = %+v, want %+v", i, rec.states[i], want[i])
		}
	}
}

func TestSignalsIgnored(t *testing.T) {
	b := newFakeBus()
	b.addPlayer(vlc, ":1.10", "VLC")
	s := newSource(b, nil)
	rec := &recorder{}
	s.Subscribe(context.Background(), session.Info{ID: vlc, BusName: vlc}, rec.callbacks())

	meta := map[string]dbus.Variant{"Metadata": dbus.MakeVariant(map[string]dbus.Variant{})}
	s.handleSignal(propsChanged(":1.99", meta)) // unknown sender
	s.handleSignal(&dbus.Signal{Sender: ":1.10", Path: "/other", Name: sigPropertiesChanged, Body: []interface{}{playerIface, meta, []string{}}})
	s.handleSignal(&dbus.Signal{Sender: ":1.10", Path: objectPath, Name: sigPropertiesChanged, Body: []interface{}{rootIface, meta, []string{}}})
	s.handleSignal(propsChanged(":1.10", map[string]dbus.Variant{"Volume": dbus.MakeVariant(0.5)}))

	if len(rec.metadata) != 0 || len(rec.states) != 0 {
		t.Errorf("unexpected callbacks: %+v %+v", rec.metadata, rec.states)
	}
}

func TestOwnerChangedNotifiesWatcher(t *testing.T) {
	b := newFakeBus()
	b.addPlayer(vlc, ":1.10", "VLC")
	s := newSource(b, nil)

	var got [][]session.Info
	w, _ := s.WatchSessions(context.Background(), func(infos []session.Info) { got = append(got, infos) })

	b.addPlayer("org.mpris.MediaPlayer2.mpv", ":1.30", "mpv")
	s.handleSignal(&dbus.Signal{Name: sigNameOwnerChanged, Body: []interface{}{"org.mpris.MediaPlayer2.mpv", "", ":1.30"}})
	s.handleSignal(&dbus.Signal{Name: sigNameOwnerChanged, Body: []interface{}{"org.gnome.Shell", "", ":1.2"}})

	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("watch callbacks = %v", got)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close watch: %v", err)
	}
	s.handleSignal(&dbus.Signal{Name: sigNameOwnerChanged, Body: []interface{}{"org.mpris.MediaPlayer2.mpv", ":1.30", ""}})
	if len(got) != 1 {
		t.Error("closed watcher still notified")
	}
}

func TestSubscriptionClose(t *testing.T) {
	b := newFakeBus()
	b.addPlayer(vlc, ":1.10", "VLC")
	s := newSource(b, nil)
	info := session.Info{ID: vlc, BusName: vlc}

	first, _ := s.Subscribe(context.Background(), info, monitor.Callbacks{})
	second, _ := s.Subscribe(context.Background(), info, monitor.Callbacks{})

	if err := first.Close(); err != nil {
		t.Errorf("closing a superseded subscription = %v, want nil", err)
	}

	// Player quits before the handle is released.
	s.handleSignal(&dbus.Signal{Name: sigNameOwnerChanged, Body: []interface{}{vlc, ":1.10", ""}})
	if err := second.Close(); !errors.Is(err, session.ErrNotSubscribed) {
		t.Errorf("closing after vanish = %v, want ErrNotSubscribed", err)
	}
}

func TestMapError(t *testing.T) {
	denied := dbus.Error{Name: errAccessDenied, Body: []interface{}{"nope"}}
	tests := []struct {
		name   string
		err    error
		denied bool
	}{
		{"value error", denied, true},
		{"pointer error", &denied, true},
		{"other dbus error", dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}, false},
		{"plain error", errors.New("eof"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(mapError(tt.err), monitor.ErrPermissionDenied); got != tt.denied {
				t.Errorf("denied = %v, want %v", got, tt.denied)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) != nil")
	}
}
