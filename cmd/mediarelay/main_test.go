package main

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/ws"
)

type nopSink struct{}

func (nopSink) KeyDown(control.KeyCode) error { return nil }
func (nopSink) KeyUp(control.KeyCode) error { return nil }

func startRelay(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	rec := health.NewRecorder()
	reg := session.NewRegistry()
	status := func() monitor.SourceStatus {
		return monitor.SourceStatus{Source: "mock", State: monitor.SourceWatching, Sessions: reg.Len()}
	}
	s := ws.NewServer(ws.NewTransport(rec, nil), control.NewDispatcher(nopSink{}, rec, nil), reg, status, rec, nil, ws.Options{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, reg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", cfgPath))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestControlCommand(t *testing.T) {
	srv, _ := startRelay(t)

	if _, err := execute(t, "control", "next", "--url", srv.URL); err != nil {
		t.Fatalf("control next: %v", err)
	}

	_, err := execute(t, "control", "bogus", "--url", srv.URL)
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Fatalf("control bogus = %v, want exit status 2", err)
	}
	if !strings.Contains(err.Error(), "not implemented") {
		t.Errorf("error = %v", err)
	}
}

func TestSessionsCommand(t *testing.T) {
	srv, reg := startRelay(t)
	_ = reg.Attach(session.Info{ID: "org.mpris.MediaPlayer2.vlc", Identity: "VLC media player", Process: "vlc"}, nil)
	reg.SetPlaying("org.mpris.MediaPlayer2.vlc", true)

	out, err := execute(t, "sessions", "--url", srv.URL)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	for _, want := range []string{"PLAYER", "VLC media player", "vlc", "playing", "*"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	srv, _ := startRelay(t)
	out, err := execute(t, "status", "--url", srv.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"listener: idle", "mock (watching, 0 sessions)", "errors:   none"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEvent(t *testing.T) {
	tests := []struct {
		name   string
		ev     session.Event
		pretty bool
		want   string
	}{
		{
			name:   "metadata pretty",
			ev:     session.Metadata{SessionID: "vlc", Title: "Song", Artist: "Band", DurationMs: 215000},
			pretty: true,
			want:   "[vlc] ♪ Song - Band (3:35, no artwork)\n",
		},
		{
			name:   "state pretty",
			ev:     session.State{SessionID: "vlc", IsPlaying: true, PositionMs: 5000, Speed: 1.5},
			pretty: true,
			want:   "[vlc] playing at 0:05 x1.5\n",
		},
		{
			name: "state json",
			ev:   session.State{SessionID: "vlc", IsPlaying: true, PositionMs: 5000, Speed: 1},
			want: `{"type":"state","sessionId":"vlc","isPlaying":true,"position":5000,"speed":1}` + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printEvent(&buf, tt.ev, tt.pretty); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("printEvent = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintHealthErrors(t *testing.T) {
	var buf bytes.Buffer
	h := &ws.HealthResponse{
		Transport: ws.Listening,
		Source:    monitor.SourceStatus{Source: "mpris", State: monitor.SourceDegraded, LastError: "timeout"},
		Errors: []health.Counter{
			{Kind: health.ArtworkEncoding, Count: 3, LastError: "decode failed", LastAt: time.Now()},
		},
	}
	if err := printHealth(&buf, h); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"listener: listening", "degraded", "last error: timeout", "artwork_encoding", "decode failed"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
