// Package app is the root Bubble Tea model of the now-playing TUI.
package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/media-relay/mediarelay/internal/client"
	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/tui/theme"
	"github.com/media-relay/mediarelay/internal/tui/views/eventlog"
	"github.com/media-relay/mediarelay/internal/tui/views/nowplaying"
	"github.com/media-relay/mediarelay/internal/tui/views/status"
)

type frameMsg time.Time

type controlResultMsg struct {
	command control.Command
	err     error
}

type sessionsMsg struct {
	sessions []session.Snapshot
	err      error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	keys     KeyMap
	help     help.Model
	width    int
	height   int
	showHelp bool
	helpText string
	showLog  bool
	endpoint string

	// Track state, keyed by session.
	tracks   map[session.ID]*nowplaying.Track
	order    []session.ID
	selected int
	focused  session.ID
	follow   bool
	shownID  session.ID

	nowPlaying nowplaying.Model
	statusBar  status.Model
	events     eventlog.Model

	connected bool
	stopped   bool // reconnecting is left to the user
}

// New creates the root model. endpoint labels the relay in the status bar.
func New(ws *client.WSClient, http *client.HTTPClient, endpoint string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:         ws,
		http:       http,
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		tracks:     make(map[session.ID]*nowplaying.Track),
		follow:     true,
		endpoint:   endpoint,
		nowPlaying: nowplaying.New(),
		statusBar:  status.New(endpoint),
		events:     eventlog.New(),
	}
}

// Init starts the websocket connection and the animation clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), frame())
}

func frame() tea.Cmd {
	return tea.Tick(nowplaying.FrameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.nowPlaying.Width = msg.Width
		m.help.Width = msg.Width
		m.helpText = renderHelp(msg.Width)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		if t := m.current(); t != nil {
			m.nowPlaying.Step(t.Progress(m.now()))
		}
		return m, frame()

	case client.ConnectedMsg:
		m.connected = true
		m.stopped = false
		m.statusBar.Connected = true
		m.statusBar.SetNotice("", false)
		m.events.Add(m.now(), eventlog.KindConn, "listening on "+m.endpoint)
		return m, tea.Batch(m.ws.ReadLoop(), m.fetchSessions())

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.events.Add(m.now(), eventlog.KindError, msg.Err.Error())
		}
		switch {
		case errors.Is(msg.Err, client.ErrReplaced):
			m.stopped = true
			m.statusBar.SetNotice("another listener took over, press r to reconnect", true)
			return m, nil
		case errors.Is(msg.Err, client.ErrUnauthorized):
			m.stopped = true
			m.statusBar.SetNotice("relay rejected the auth token", true)
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.EventMsg:
		m.events.AddEvent(m.now(), msg.Event)
		known := m.apply(msg.Event)
		if !known {
			return m, tea.Batch(m.ws.ReadLoop(), m.fetchSessions())
		}
		return m, m.ws.ReadLoop()

	case sessionsMsg:
		if msg.err != nil {
			m.statusBar.SetNotice("sessions: "+msg.err.Error(), true)
			m.events.Add(m.now(), eventlog.KindError, "sessions: "+msg.err.Error())
			return m, nil
		}
		m.syncSessions(msg.sessions)
		return m, nil

	case controlResultMsg:
		result := "ok"
		if msg.err != nil {
			result = msg.err.Error()
		}
		m.events.Add(m.now(), eventlog.KindControl, string(msg.command)+": "+result)
		switch {
		case msg.err == nil:
			m.statusBar.SetNotice(string(msg.command)+" sent", false)
		case errors.Is(msg.err, control.ErrNotImplemented):
			m.statusBar.SetNotice(string(msg.command)+": not implemented", true)
		default:
			m.statusBar.SetNotice(msg.err.Error(), true)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Escape, m.keys.Help) {
			m.showHelp = false
		}
		if key.Matches(msg, m.keys.Quit) {
			m.cancel()
			return m, tea.Quit
		}
		return m, nil
	}

	if m.showLog {
		switch {
		case key.Matches(msg, m.keys.Escape, m.keys.Log):
			m.showLog = false
			return m, nil
		case key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
			return m, nil
		case key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Log):
		m.showLog = true
		return m, nil

	case key.Matches(msg, m.keys.PlayPause):
		return m, m.sendControl(control.PlayPause)

	case key.Matches(msg, m.keys.Next):
		return m, m.sendControl(control.Next)

	case key.Matches(msg, m.keys.Previous):
		return m, m.sendControl(control.Previous)

	case key.Matches(msg, m.keys.Right):
		m.browse(1)
		return m, nil

	case key.Matches(msg, m.keys.Left):
		m.browse(-1)
		return m, nil

	case key.Matches(msg, m.keys.Follow):
		m.follow = true
		m.statusBar.Following = true
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		if m.connected || !m.stopped {
			return m, nil
		}
		m.stopped = false
		m.statusBar.SetNotice("reconnecting", false)
		return m, m.ws.Listen(m.ctx)

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		if m.helpText == "" {
			m.helpText = renderHelp(m.width)
		}
		return m, nil
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showHelp {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.statusBar.View(),
			m.helpText,
			theme.StyleDimmed.Render("  esc: close help"),
		)
	}

	if m.showLog {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.statusBar.View(),
			m.events.View(m.width, m.height-3),
		)
	}

	now := m.now()
	sections := []string{
		m.statusBar.View(),
		m.nowPlaying.View(m.current(), now),
		m.renderSessions(),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderSessions() string {
	if len(m.order) < 2 {
		return ""
	}
	shown := m.currentID()
	var lines []string
	for _, id := range m.order {
		t := m.tracks[id]
		prefix := "  "
		style := theme.StyleDimmed
		if id == shown {
			prefix = "> "
			style = theme.StyleSelected
		}
		glyph := lipgloss.NewStyle().
			Foreground(theme.PlaybackColor(t.Playing, t.HasState)).
			Render(theme.PlaybackGlyph(t.Playing, t.HasState))
		lines = append(lines, prefix+glyph+" "+style.Render(displayName(t)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func displayName(t *nowplaying.Track) string {
	name := t.Name
	if name == "" {
		name = string(t.Session)
	}
	if t.Title != "" {
		name += ": " + t.Title
	}
	return name
}

// apply folds ev into the track table and reports whether its session was
// already known.
func (m *Model) apply(ev session.Event) bool {
	id := ev.Session()
	t, known := m.tracks[id]
	if !known {
		t = nowplaying.NewTrack(id)
		m.tracks[id] = t
		m.order = append(m.order, id)
		m.statusBar.Sessions = len(m.order)
	}

	switch ev := ev.(type) {
	case session.Metadata:
		t.ApplyMetadata(ev)
		if id == m.currentID() {
			m.nowPlaying.Jump(t.Progress(m.now()))
		}
	case session.State:
		t.ApplyState(ev, m.now())
		if ev.IsPlaying {
			m.focused = id
		}
	}
	m.syncShown()
	return known
}

// syncSessions takes names from the relay and drops tracks of sessions the
// relay no longer holds.
func (m *Model) syncSessions(snaps []session.Snapshot) {
	live := make(map[session.ID]bool, len(snaps))
	for _, s := range snaps {
		live[s.ID] = true
		t, ok := m.tracks[s.ID]
		if !ok {
			t = nowplaying.NewTrack(s.ID)
			m.tracks[s.ID] = t
			m.order = append(m.order, s.ID)
		}
		t.Name = s.DisplayName()
		if s.Focused && m.focused == "" {
			m.focused = s.ID
		}
	}

	kept := m.order[:0]
	for _, id := range m.order {
		if live[id] {
			kept = append(kept, id)
			continue
		}
		delete(m.tracks, id)
		if m.focused == id {
			m.focused = ""
		}
	}
	m.order = kept
	sort.SliceStable(m.order, func(i, j int) bool {
		return m.tracks[m.order[i]].Name < m.tracks[m.order[j]].Name
	})
	if m.selected >= len(m.order) {
		m.selected = 0
	}
	m.statusBar.Sessions = len(m.order)
	m.syncShown()
}

func (m *Model) browse(delta int) {
	if len(m.order) == 0 {
		return
	}
	if m.follow {
		m.selected = m.indexOf(m.currentID())
	}
	m.follow = false
	m.statusBar.Following = false
	m.selected = (m.selected + delta + len(m.order)) % len(m.order)
	m.syncShown()
}

// syncShown snaps the progress bar when the displayed session changes.
func (m *Model) syncShown() {
	id := m.currentID()
	if id == m.shownID {
		return
	}
	m.shownID = id
	if t := m.tracks[id]; t != nil {
		m.nowPlaying.Jump(t.Progress(m.now()))
	} else {
		m.nowPlaying.Jump(0)
	}
}

func (m Model) indexOf(id session.ID) int {
	for i, o := range m.order {
		if o == id {
			return i
		}
	}
	return 0
}

func (m Model) currentID() session.ID {
	if m.follow {
		if _, ok := m.tracks[m.focused]; ok {
			return m.focused
		}
	}
	if len(m.order) == 0 {
		return ""
	}
	if m.selected >= len(m.order) {
		return m.order[0]
	}
	return m.order[m.selected]
}

func (m Model) current() *nowplaying.Track {
	return m.tracks[m.currentID()]
}

func (m Model) sendControl(c control.Command) tea.Cmd {
	hc, ctx := m.http, m.ctx
	return func() tea.Msg {
		return controlResultMsg{command: c, err: hc.Control(ctx, string(c))}
	}
}

func (m Model) fetchSessions() tea.Cmd {
	hc, ctx := m.http, m.ctx
	return func() tea.Msg {
		sessions, err := hc.Sessions(ctx)
		return sessionsMsg{sessions: sessions, err: err}
	}
}
