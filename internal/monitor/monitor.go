package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/session"
)

// Options tune a Monitor.
type Options struct {
	// EmitInitialState makes the monitor read and publish the current
	// metadata and playback state of every newly attached session.
	EmitInitialState bool

	// InboxSize is the capacity of the callback inbox. Host callbacks
	// block when it is full; they are never dropped.
	InboxSize int
}

func DefaultOptions() Options {
	return Options{EmitInitialState: true, InboxSize: 64}
}

// message is one host callback queued for the monitor goroutine.
type message interface{ isMessage() }

type sessionsChanged struct{ infos []session.Info }

type metadataChanged struct {
	id  session.ID
	raw RawMetadata
}

type stateChanged struct {
	id  session.ID
	raw RawPlaybackState
}

func (sessionsChanged) isMessage() {}
func (metadataChanged) isMessage() {}
func (stateChanged) isMessage() {}

// Monitor keeps exactly one subscription per host session. It watches the
// session set, attaches new sessions, detaches vanished ones and routes
// every change notification through the listener in arrival order.
type Monitor struct {
	src      Source
	registry *session.Registry
	listener *Listener
	recorder *health.Recorder
	logger   *zap.Logger
	opts     Options
	status   *sourceStatus

	inbox chan message
	done  chan struct{}
}

func New(src Source, registry *session.Registry, listener *Listener, recorder *health.Recorder, logger *zap.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultOptions().InboxSize
	}
	return &Monitor{
		src:      src,
		registry: registry,
		listener: listener,
		recorder: recorder,
		logger:   logger.Named("monitor").With(zap.String("source", src.Name())),
		opts:     opts,
		status:   newSourceStatus(src.Name()),
		inbox:    make(chan message, opts.InboxSize),
		done:     make(chan struct{}),
	}
}

// Registry returns the handle registry the monitor maintains.
func (m *Monitor) Registry() *session.Registry {
	return m.registry
}

// Status reports the current state of the session source.
func (m *Monitor) Status() SourceStatus {
	return m.status.snapshot(m.registry.Len())
}

// Run watches the host until ctx is cancelled. On return every
// subscription handle has been released. A watch refused by the host is
// absorbed: Run then idles until ctx is cancelled. Other watch errors are
// returned.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.done)

	watch, err := m.src.WatchSessions(ctx, m.enqueueSessions)
	if err != nil {
		m.status.watchFailed(err)
		if !errors.Is(err, ErrPermissionDenied) {
			return fmt.Errorf("watch %s sessions: %w", m.src.Name(), err)
		}
		m.permissionDenied("watch", "", err)
		<-ctx.Done()
		return nil
	}
	m.status.watching()
	m.logger.Info("monitor started")

	if infos, err := m.src.ActiveSessions(ctx); err != nil {
		m.sourceError("list sessions", "", err)
	} else {
		m.reconcile(ctx, infos)
	}

	for {
		select {
		case <-ctx.Done():
			m.shutdown(watch)
			return nil
		case msg := <-m.inbox:
			m.handle(ctx, msg)
		}
	}
}

func (m *Monitor) shutdown(watch session.Handle) {
	if err := watch.Close(); err != nil {
		m.released("", err)
	}
	for id, err := range m.registry.DetachAll() {
		m.released(id, err)
	}
	m.status.stopped()
	m.logger.Info("monitor stopped")
}

// enqueue hands a callback to the monitor goroutine. It blocks while the
// inbox is full and gives up only once Run has returned.
func (m *Monitor) enqueue(msg message) {
	select {
	case m.inbox <- msg:
	case <-m.done:
	}
}

func (m *Monitor) enqueueSessions(infos []session.Info) {
	m.enqueue(sessionsChanged{infos: infos})
}

func (m *Monitor) callbacks(id session.ID) Callbacks {
	return Callbacks{
		OnMetadata: func(raw RawMetadata) {
			m.enqueue(metadataChanged{id: id, raw: raw})
		},
		OnPlaybackState: func(raw RawPlaybackState) {
			m.enqueue(stateChanged{id: id, raw: raw})
		},
	}
}

func (m *Monitor) handle(ctx context.Context, msg message) {
	switch msg := msg.(type) {
	case sessionsChanged:
		m.reconcile(ctx, msg.infos)
	case metadataChanged:
		m.listener.OnMetadata(ctx, msg.id, msg.raw)
	case stateChanged:
		m.registry.SetPlaying(msg.id, msg.raw.Status == StatusPlaying)
		m.listener.OnPlaybackState(msg.id, msg.raw)
	}
}

// reconcile makes the registry match infos: sessions missing from infos are
// detached and every listed session is (re)subscribed.
func (m *Monitor) reconcile(ctx context.Context, infos []session.Info) {
	keep := make([]session.ID, 0, len(infos))
	for _, info := range infos {
		keep = append(keep, info.ID)
	}
	for id, err := range m.registry.Retain(keep) {
		m.logger.Debug("session detached", zap.String("session", string(id)))
		m.released(id, err)
	}

	for _, info := range infos {
		m.attach(ctx, info)
	}
	m.logger.Debug("sessions reconciled", zap.Int("sessions", m.registry.Len()))
}

func (m *Monitor) attach(ctx context.Context, info session.Info) {
	isNew := !m.registry.Contains(info.ID)

	h, err := m.src.Subscribe(ctx, info, m.callbacks(info.ID))
	if err != nil {
		m.sourceError("subscribe", info.ID, err)
		return
	}
	m.status.succeeded()
	if err := m.registry.Attach(info, h); err != nil {
		m.released(info.ID, err)
	}
	if isNew {
		m.logger.Info("session attached",
			zap.String("session", string(info.ID)),
			zap.String("player", info.DisplayName()))
	}

	if isNew && m.opts.EmitInitialState {
		m.announce(ctx, info.ID)
	}
}

// announce publishes the current state of a freshly attached session.
func (m *Monitor) announce(ctx context.Context, id session.ID) {
	if md, err := m.src.Metadata(ctx, id); err != nil {
		m.sourceError("read metadata", id, err)
	} else {
		m.listener.OnMetadata(ctx, id, md)
	}

	if st, err := m.src.PlaybackState(ctx, id); err != nil {
		m.sourceError("read playback state", id, err)
	} else {
		m.registry.SetPlaying(id, st.Status == StatusPlaying)
		m.listener.OnPlaybackState(id, st)
	}
}

// sourceError absorbs a failed host call for one session.
func (m *Monitor) sourceError(op string, id session.ID, err error) {
	if errors.Is(err, ErrPermissionDenied) {
		m.permissionDenied(op, id, err)
		return
	}
	m.status.failed(err)
	m.recorder.Record(health.SubscribeFailed, err)
	m.logger.Warn(op+" failed", zap.String("session", string(id)), zap.Error(err))
}

func (m *Monitor) permissionDenied(op string, id session.ID, err error) {
	m.recorder.Record(health.PermissionDenied, err)
	m.logger.Warn(op+" denied by host", zap.String("session", string(id)), zap.Error(err))
}

// released absorbs the close error of a subscription handle.
func (m *Monitor) released(id session.ID, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, session.ErrNotSubscribed) {
		m.recorder.Record(health.UnregisterRace, err)
		m.logger.Debug("handle already released", zap.String("session", string(id)))
		return
	}
	m.logger.Warn("release subscription", zap.String("session", string(id)), zap.Error(err))
}
