package eventlog

import (
	"strings"
	"testing"
	"time"

	"github.com/media-relay/mediarelay/internal/session"
)

var at = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCap(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(at, KindConn, "msg")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("entries = %d, want %d", len(m.Entries), maxEntries)
	}
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Add(at, KindConn, "msg")
	}
	m.ScrollUp(3)
	if m.Offset != 3 {
		t.Errorf("offset = %d, want 3", m.Offset)
	}
	m.ScrollUp(100)
	if m.Offset != 4 {
		t.Errorf("offset = %d, want capped at 4", m.Offset)
	}
	m.ScrollDown(100)
	if m.Offset != 0 {
		t.Errorf("offset = %d, want 0", m.Offset)
	}
	m.ScrollUp(2)
	m.Add(at, KindConn, "new")
	if m.Offset != 0 {
		t.Error("a new entry should scroll to the bottom")
	}
}

func TestAddEvent(t *testing.T) {
	m := New()
	m.AddEvent(at, session.Metadata{SessionID: "vlc", Title: "Song", Artist: "Band", DurationMs: 1000, Artwork: []byte{1, 2, 3}})
	m.AddEvent(at, session.State{SessionID: "vlc", IsPlaying: true, PositionMs: 42, Speed: 1})

	if len(m.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(m.Entries))
	}
	if m.Entries[0].Kind != KindMetadata || m.Entries[0].Message != `vlc "Song" by "Band" 1000ms +art 3B` {
		t.Errorf("metadata entry = %+v", m.Entries[0])
	}
	if m.Entries[1].Kind != KindState || m.Entries[1].Message != "vlc playing @42ms x1" {
		t.Errorf("state entry = %+v", m.Entries[1])
	}
}

func TestView(t *testing.T) {
	m := New()
	if !strings.Contains(m.View(100, 20), "Nothing received") {
		t.Error("empty log should say so")
	}
	m.Add(at, KindError, "dial refused")
	v := m.View(100, 20)
	if !strings.Contains(v, "dial refused") || !strings.Contains(v, "12:00:00.000") {
		t.Errorf("view = %s", v)
	}
}
