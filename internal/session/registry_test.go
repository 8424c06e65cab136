package session

import (
	"errors"
	"testing"
	"time"
)

type fakeHandle struct {
	closed int
	err    error
}

func (h *fakeHandle) Close() error {
	h.closed++
	return h.err
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	r.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return r
}

func TestAttachReplacesPreviousHandle(t *testing.T) {
	r := newTestRegistry()
	first := &fakeHandle{}
	second := &fakeHandle{}

	if err := r.Attach(Info{ID: "a"}, first); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if err := r.Attach(Info{ID: "a", Identity: "VLC"}, second); err != nil {
		t.Fatalf("second attach: %v", err)
	}

	if first.closed != 1 {
		t.Errorf("previous handle closed %d times, want 1", first.closed)
	}
	if second.closed != 0 {
		t.Errorf("live handle closed %d times, want 0", second.closed)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	info, _ := r.Get("a")
	if info.Identity != "VLC" {
		t.Errorf("info not refreshed: %+v", info)
	}
	snaps := r.Snapshots()
	if snaps[0].Attachments != 2 {
		t.Errorf("Attachments = %d, want 2", snaps[0].Attachments)
	}
}

func TestAttachReturnsCloseError(t *testing.T) {
	r := newTestRegistry()
	_ = r.Attach(Info{ID: "a"}, &fakeHandle{err: ErrNotSubscribed})

	err := r.Attach(Info{ID: "a"}, &fakeHandle{})
	if !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Attach error = %v, want ErrNotSubscribed", err)
	}
	if !r.Contains("a") {
		t.Error("new handle should be stored even when closing the old one fails")
	}
}

func TestDetach(t *testing.T) {
	r := newTestRegistry()
	h := &fakeHandle{}
	_ = r.Attach(Info{ID: "a"}, h)

	if err := r.Detach("a"); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if h.closed != 1 {
		t.Errorf("handle closed %d times, want 1", h.closed)
	}
	if r.Contains("a") {
		t.Error("session still registered after Detach")
	}
	if err := r.Detach("a"); err != nil {
		t.Errorf("second Detach should be a no-op, got %v", err)
	}
	if h.closed != 1 {
		t.Errorf("handle closed again on second Detach")
	}
}

func TestRetain(t *testing.T) {
	r := newTestRegistry()
	ha, hb, hc := &fakeHandle{}, &fakeHandle{err: ErrNotSubscribed}, &fakeHandle{}
	_ = r.Attach(Info{ID: "a"}, ha)
	_ = r.Attach(Info{ID: "b"}, hb)
	_ = r.Attach(Info{ID: "c"}, hc)

	removed := r.Retain([]ID{"a", "x"})

	if len(removed) != 2 {
		t.Fatalf("removed %d sessions, want 2: %v", len(removed), removed)
	}
	if err, ok := removed["b"]; !ok || !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("removed[b] = %v, %v; want ErrNotSubscribed", err, ok)
	}
	if err, ok := removed["c"]; !ok || err != nil {
		t.Errorf("removed[c] = %v, %v; want nil, true", err, ok)
	}
	if ha.closed != 0 || hb.closed != 1 || hc.closed != 1 {
		t.Errorf("close counts a=%d b=%d c=%d, want 0 1 1", ha.closed, hb.closed, hc.closed)
	}
	if !r.Contains("a") || r.Contains("x") {
		t.Error("Retain must keep survivors and never attach new sessions")
	}
}

func TestDetachAll(t *testing.T) {
	r := newTestRegistry()
	handles := []*fakeHandle{{}, {}, {}}
	for i, h := range handles {
		_ = r.Attach(Info{ID: ID(rune('a' + i))}, h)
	}

	r.DetachAll()

	if r.Len() != 0 {
		t.Errorf("Len = %d after DetachAll", r.Len())
	}
	for i, h := range handles {
		if h.closed != 1 {
			t.Errorf("handle %d closed %d times, want 1", i, h.closed)
		}
	}
}

func TestFocused(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *Registry)
		want    ID
		wantAny bool
	}{
		{
			name:  "empty registry",
			setup: func(r *Registry) {},
		},
		{
			name: "earliest attached when nothing plays",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				_ = r.Attach(Info{ID: "b"}, nil)
			},
			want:    "a",
			wantAny: true,
		},
		{
			name: "last session that started playing",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				_ = r.Attach(Info{ID: "b"}, nil)
				r.SetPlaying("b", true)
				r.SetPlaying("a", true)
			},
			want:    "a",
			wantAny: true,
		},
		{
			name: "focus kept after pause",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				_ = r.Attach(Info{ID: "b"}, nil)
				r.SetPlaying("b", true)
				r.SetPlaying("b", false)
			},
			want:    "b",
			wantAny: true,
		},
		{
			name: "falls back to a playing session when focus detaches",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				_ = r.Attach(Info{ID: "b"}, nil)
				_ = r.Attach(Info{ID: "c"}, nil)
				r.SetPlaying("b", true)
				r.SetPlaying("c", true)
				_ = r.Detach("c")
			},
			want:    "b",
			wantAny: true,
		},
		{
			name: "unknown session ignored",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				r.SetPlaying("zzz", true)
			},
			want:    "a",
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			tt.setup(r)
			got, ok := r.Focused()
			if ok != tt.wantAny {
				t.Fatalf("Focused ok = %v, want %v", ok, tt.wantAny)
			}
			if got.ID != tt.want {
				t.Errorf("Focused = %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestSnapshotsOrderAndFlags(t *testing.T) {
	r := newTestRegistry()
	_ = r.Attach(Info{ID: "b"}, nil)
	_ = r.Attach(Info{ID: "a"}, nil)
	r.SetPlaying("a", true)

	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].ID != "b" || snaps[1].ID != "a" {
		t.Errorf("order = %s,%s; want b,a", snaps[0].ID, snaps[1].ID)
	}
	if snaps[0].Focused || !snaps[1].Focused || !snaps[1].Playing {
		t.Errorf("flags wrong: %+v", snaps)
	}
}

func TestSnapshotsFlagResolvedFocus(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Registry)
		want  ID
	}{
		{
			name: "nothing ever played",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				_ = r.Attach(Info{ID: "b"}, nil)
			},
			want: "a",
		},
		{
			name: "focused session detached",
			setup: func(r *Registry) {
				_ = r.Attach(Info{ID: "a"}, nil)
				_ = r.Attach(Info{ID: "b"}, nil)
				_ = r.Attach(Info{ID: "c"}, nil)
				r.SetPlaying("b", true)
				r.SetPlaying("c", true)
				_ = r.Detach("c")
			},
			want: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			tt.setup(r)
			focused, _ := r.Focused()
			if focused.ID != tt.want {
				t.Fatalf("Focused = %q, want %q", focused.ID, tt.want)
			}
			flagged := 0
			for _, s := range r.Snapshots() {
				if s.Focused {
					flagged++
					if s.ID != tt.want {
						t.Errorf("snapshot %q flagged, want %q", s.ID, tt.want)
					}
				}
			}
			if flagged != 1 {
				t.Errorf("%d snapshots flagged focused, want 1", flagged)
			}
		})
	}
}
