package monitor

import (
	"errors"
	"testing"
)

func TestSourceStatusTransitions(t *testing.T) {
	s := newSourceStatus("fake")
	if got := s.snapshot(0).State; got != SourceStarting {
		t.Fatalf("initial state = %s", got)
	}

	s.watching()
	for i := 0; i < degradedAfter-1; i++ {
		s.failed(errors.New("timeout"))
	}
	if got := s.snapshot(0).State; got != SourceWatching {
		t.Errorf("state after %d failures = %s, want watching", degradedAfter-1, got)
	}

	s.failed(errors.New("timeout again"))
	snap := s.snapshot(2)
	if snap.State != SourceDegraded {
		t.Errorf("state = %s, want degraded", snap.State)
	}
	if snap.ConsecutiveFailures != degradedAfter || snap.LastError != "timeout again" || snap.Sessions != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	s.succeeded()
	if snap := s.snapshot(0); snap.State != SourceWatching || snap.ConsecutiveFailures != 0 {
		t.Errorf("after success: %+v", snap)
	}

	s.stopped()
	if got := s.snapshot(0).State; got != SourceStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}
