// Package mpris implements the host session source on the Linux desktop
// session bus. Every media player that owns an org.mpris.MediaPlayer2.*
// bus name is one session.
package mpris

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/session"
)

// callTimeout bounds the bus calls made from the signal goroutine.
const callTimeout = 2 * time.Second

var _ monitor.Source = (*Source)(nil)

// Source watches MPRIS players on the session bus. All signals are handled
// on a single goroutine, which is where subscription callbacks run.
type Source struct {
	bus    bus
	conn   *dbus.Conn
	logger *zap.Logger

	mu      sync.Mutex
	owners  map[string]session.ID // unique connection name -> bus name
	infos   map[session.ID]session.Info
	subs    map[session.ID]*subscription
	watcher *watch

	signals chan *dbus.Signal
}

var matchRules = [][]dbus.MatchOption{
	{
		dbus.WithMatchSender(dbusName),
		dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg0Namespace(strings.TrimSuffix(busPrefix, ".")),
	},
	{
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, playerIface),
	},
	{
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(playerIface),
		dbus.WithMatchMember("Seeked"),
	},
}

// Connect opens the session bus and starts listening for player signals.
func Connect(logger *zap.Logger) (*Source, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", mapError(err))
	}
	for _, rule := range matchRules {
		if err := conn.AddMatchSignal(rule...); err != nil {
			conn.Close()
			return nil, fmt.Errorf("add match rule: %w", mapError(err))
		}
	}

	s := newSource(connBus{conn: conn}, logger)
	s.conn = conn
	conn.Signal(s.signals)
	go s.dispatch()
	return s, nil
}

func newSource(b bus, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		bus:     b,
		logger:  logger.Named("mpris"),
		owners:  make(map[string]session.ID),
		infos:   make(map[session.ID]session.Info),
		subs:    make(map[session.ID]*subscription),
		signals: make(chan *dbus.Signal, 32),
	}
}

func (s *Source) Name() string { return "mpris" }

// Close disconnects from the session bus. Closing the connection closes the
// signal channel, which ends the dispatch goroutine.
func (s *Source) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
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

// WatchSessions registers onChange for player appear/vanish notifications.
// A later call replaces the earlier watcher.
func (s *Source) WatchSessions(ctx context.Context, onChange func([]session.Info)) (session.Handle, error) {
	w := &watch{src: s, onChange: onChange}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return w, nil
}

// ActiveSessions lists the MPRIS players currently on the bus, sorted by
// bus name.
func (s *Source) ActiveSessions(ctx context.Context) ([]session.Info, error) {
	names, err := s.bus.ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	var infos []session.Info
	for _, name := range names {
		if !strings.HasPrefix(name, busPrefix) {
			continue
		}
		infos = append(infos, s.describe(ctx, name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// describe returns cached info for a player, looking up its identity and
// process on first sight. Lookup failures leave fields empty.
func (s *Source) describe(ctx context.Context, name string) session.Info {
	id := session.ID(name)
	s.mu.Lock()
	info, ok := s.infos[id]
	s.mu.Unlock()
	if ok {
		return info
	}

	info = session.Info{ID: id, BusName: name}
	if owner, err := s.bus.NameOwner(ctx, name); err == nil {
		s.mu.Lock()
		s.owners[owner] = id
		s.mu.Unlock()
	}
	if v, err := s.bus.Property(ctx, name, rootIface, "Identity"); err == nil {
		info.Identity = stringValue(v)
	}
	if pid, err := s.bus.ProcessID(ctx, name); err == nil && pid > 0 {
		info.PID = int32(pid)
		info.Process = processName(ctx, info.PID)
	}

	s.mu.Lock()
	s.infos[id] = info
	s.mu.Unlock()
	return info
}

func processName(ctx context.Context, pid int32) string {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}

type subscription struct {
	src *Source
	id  session.ID
	cb  monitor.Callbacks

	mu         sync.Mutex
	last       monitor.RawPlaybackState
	superseded bool
}

// Close unregisters the subscription. It reports session.ErrNotSubscribed
// when the player left the bus first.
func (sub *subscription) Close() error {
	s := sub.src
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[sub.id] == sub {
		delete(s.subs, sub.id)
		return nil
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.superseded {
		return nil
	}
	return session.ErrNotSubscribed
}

func (sub *subscription) mergeState(props map[string]dbus.Variant) monitor.RawPlaybackState {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.last = applyPlayerProps(sub.last, props)
	return sub.last
}

func (sub *subscription) seek(positionMs int64) monitor.RawPlaybackState {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.last.PositionMs = positionMs
	return sub.last
}

// Subscribe routes the player's property changes to cb. Subscribing a
// player again supersedes the earlier subscription.
func (s *Source) Subscribe(ctx context.Context, info session.Info, cb monitor.Callbacks) (session.Handle, error) {
	name := info.BusName
	if name == "" {
		name = string(info.ID)
	}
	owner, err := s.bus.NameOwner(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve owner of %s: %w", name, err)
	}

	sub := &subscription{src: s, id: info.ID, cb: cb}
	if props, err := s.bus.Properties(ctx, name, playerIface); err == nil {
		sub.last = applyPlayerProps(sub.last, props)
	} else {
		sub.last.Status = monitor.StatusStopped
	}

	s.mu.Lock()
	s.owners[owner] = info.ID
	if prev := s.subs[info.ID]; prev != nil {
		prev.mu.Lock()
		prev.superseded = true
		prev.mu.Unlock()
	}
	s.subs[info.ID] = sub
	s.mu.Unlock()
	return sub, nil
}

// Metadata reads the player's current Metadata property.
func (s *Source) Metadata(ctx context.Context, id session.ID) (monitor.RawMetadata, error) {
	v, err := s.bus.Property(ctx, string(id), playerIface, "Metadata")
	if err != nil {
		return monitor.RawMetadata{}, fmt.Errorf("read metadata of %s: %w", id, err)
	}
	m, _ := v.Value().(map[string]dbus.Variant)
	return parseMetadata(m), nil
}

// PlaybackState reads PlaybackStatus, Position and Rate in one call.
func (s *Source) PlaybackState(ctx context.Context, id session.ID) (monitor.RawPlaybackState, error) {
	props, err := s.bus.Properties(ctx, string(id), playerIface)
	if err != nil {
		return monitor.RawPlaybackState{}, fmt.Errorf("read playback state of %s: %w", id, err)
	}
	return applyPlayerProps(monitor.RawPlaybackState{Status: monitor.StatusStopped}, props), nil
}

func (s *Source) dispatch() {
	for sig := range s.signals {
		s.handleSignal(sig)
	}
}

func (s *Source) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case sigNameOwnerChanged:
		s.onOwnerChanged(sig.Body)
	case sigPropertiesChanged:
		if sig.Path == objectPath {
			s.onPropertiesChanged(sig.Sender, sig.Body)
		}
	case sigSeeked:
		if sig.Path == objectPath {
			s.onSeeked(sig.Sender, sig.Body)
		}
	}
}

func (s *Source) onOwnerChanged(body []interface{}) {
	if len(body) != 3 {
		return
	}
	name, _ := body[0].(string)
	oldOwner, _ := body[1].(string)
	newOwner, _ := body[2].(string)
	if !strings.HasPrefix(name, busPrefix) {
		return
	}
	id := session.ID(name)

	s.mu.Lock()
	if oldOwner != "" {
		delete(s.owners, oldOwner)
	}
	delete(s.infos, id)
	if newOwner != "" {
		s.owners[newOwner] = id
	} else {
		delete(s.subs, id)
	}
	w := s.watcher
	s.mu.Unlock()

	s.logger.Debug("player owner changed",
		zap.String("name", name),
		zap.String("old", oldOwner),
		zap.String("new", newOwner))

	if w == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	infos, err := s.ActiveSessions(ctx)
	if err != nil {
		s.logger.Warn("list players after owner change", zap.Error(err))
		return
	}
	w.onChange(infos)
}

func (s *Source) subscriptionFor(sender string) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.owners[sender]
	if !ok {
		return nil
	}
	return s.subs[id]
}

func (s *Source) onPropertiesChanged(sender string, body []interface{}) {
	if len(body) < 2 {
		return
	}
	if iface, _ := body[0].(string); iface != playerIface {
		return
	}
	changed, _ := body[1].(map[string]dbus.Variant)
	sub := s.subscriptionFor(sender)
	if sub == nil {
		return
	}

	if v, ok := changed["Metadata"]; ok && sub.cb.OnMetadata != nil {
		m, _ := v.Value().(map[string]dbus.Variant)
		sub.cb.OnMetadata(parseMetadata(m))
	}

	_, status := changed["PlaybackStatus"]
	_, rate := changed["Rate"]
	if !status && !rate {
		return
	}
	// Position is never signalled; read it so the state carries a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if pos, err := s.bus.Property(ctx, sender, playerIface, "Position"); err == nil {
		changed["Position"] = pos
	}
	st := sub.mergeState(changed)
	if sub.cb.OnPlaybackState != nil {
		sub.cb.OnPlaybackState(st)
	}
}

func (s *Source) onSeeked(sender string, body []interface{}) {
	if len(body) != 1 {
		return
	}
	sub := s.subscriptionFor(sender)
	if sub == nil {
		return
	}
	st := sub.seek(microsToMillis(microsValue(dbus.MakeVariant(body[0]))))
	if sub.cb.OnPlaybackState != nil {
		sub.cb.OnPlaybackState(st)
	}
}

// call invokes a Player method on the session's bus name.
func (s *Source) call(ctx context.Context, id session.ID, method string) error {
	s.mu.Lock()
	info, ok := s.infos[id]
	s.mu.Unlock()
	dest := string(id)
	if ok && info.BusName != "" {
		dest = info.BusName
	}
	return s.bus.Call(ctx, dest, playerIface+"."+method)
}
