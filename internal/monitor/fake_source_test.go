package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/media-relay/mediarelay/internal/session"
)

type fakeSub struct {
	mu       sync.Mutex
	cb       Callbacks
	closed   int
	closeErr error
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *fakeSub) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeWatch struct{ closed bool }

func (w *fakeWatch) Close() error {
	w.closed = true
	return nil
}

// fakeSource is an in-memory host. Tests drive it through setSessions and
// the Callbacks of its subscriptions.
type fakeSource struct {
	mu           sync.Mutex
	sessions     []session.Info
	onChange     func([]session.Info)
	subs         map[session.ID][]*fakeSub
	watchErr     error
	listErr      error
	subscribeErr map[session.ID]error
	closeErr     map[session.ID]error
	metadata     map[session.ID]RawMetadata
	state        map[session.ID]RawPlaybackState
	watch        *fakeWatch
}

func newFakeSource(ids ...session.ID) *fakeSource {
	f := &fakeSource{
		subs:         make(map[session.ID][]*fakeSub),
		subscribeErr: make(map[session.ID]error),
		closeErr:     make(map[session.ID]error),
		metadata:     make(map[session.ID]RawMetadata),
		state:        make(map[session.ID]RawPlaybackState),
	}
	for _, id := range ids {
		f.sessions = append(f.sessions, session.Info{ID: id})
	}
	return f
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) WatchSessions(ctx context.Context, onChange func([]session.Info)) (session.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.onChange = onChange
	f.watch = &fakeWatch{}
	return f.watch, nil
}

func (f *fakeSource) ActiveSessions(ctx context.Context) ([]session.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]session.Info(nil), f.sessions...), nil
}

func (f *fakeSource) Subscribe(ctx context.Context, info session.Info, cb Callbacks) (session.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscribeErr[info.ID]; err != nil {
		return nil, err
	}
	sub := &fakeSub{cb: cb, closeErr: f.closeErr[info.ID]}
	f.subs[info.ID] = append(f.subs[info.ID], sub)
	return sub, nil
}

func (f *fakeSource) Metadata(ctx context.Context, id session.ID) (RawMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[id], nil
}

func (f *fakeSource) PlaybackState(ctx context.Context, id session.ID) (RawPlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[id], nil
}

// setSessions replaces the host session set and fires the watch callback
// the way a host dispatch thread would.
func (f *fakeSource) setSessions(ids ...session.ID) {
	f.mu.Lock()
	f.sessions = f.sessions[:0]
	for _, id := range ids {
		f.sessions = append(f.sessions, session.Info{ID: id})
	}
	infos := append([]session.Info(nil), f.sessions...)
	onChange := f.onChange
	f.mu.Unlock()
	onChange(infos)
}

func (f *fakeSource) subscriptions(id session.ID) []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSub(nil), f.subs[id]...)
}

func (f *fakeSource) latest(t *testing.T, id session.ID) *fakeSub {
	t.Helper()
	subs := f.subscriptions(id)
	if len(subs) == 0 {
		t.Fatalf("session %s was never subscribed", id)
	}
	return subs[len(subs)-1]
}

type recordingPublisher struct {
	ch chan session.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{ch: make(chan session.Event, 512)}
}

func (p *recordingPublisher) Publish(ev session.Event) {
	p.ch <- ev
}

func (p *recordingPublisher) next(t *testing.T) session.Event {
	t.Helper()
	select {
	case ev := <-p.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (p *recordingPublisher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-p.ch:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
