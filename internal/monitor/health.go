package monitor

import (
	"sync"
	"time"
)

// SourceState summarizes how the session source is doing.
type SourceState string

const (
	SourceStarting SourceState = "starting"
	SourceWatching SourceState = "watching"
	SourceDegraded SourceState = "degraded"
	SourceFailed   SourceState = "failed"
	SourceStopped  SourceState = "stopped"
)

// degradedAfter is the number of consecutive failed host calls after which
// a watching source is reported as degraded.
const degradedAfter = 3

// SourceStatus is the snapshot served by the relay's health endpoint.
type SourceStatus struct {
	Source              string      `json:"source"`
	State               SourceState `json:"state"`
	Sessions            int         `json:"sessions"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	LastError           string      `json:"lastError,omitempty"`
	LastErrorAt         time.Time   `json:"lastErrorAt,omitempty"`
}

// sourceStatus tracks the watch state and consecutive failure count of the
// source. Written by the monitor goroutine, read by HTTP handlers.
type sourceStatus struct {
	mu        sync.Mutex
	name      string
	state     SourceState
	failures  int
	lastErr   string
	lastErrAt time.Time
	now       func() time.Time
}

func newSourceStatus(name string) *sourceStatus {
	return &sourceStatus{name: name, state: SourceStarting, now: time.Now}
}

func (s *sourceStatus) watching() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SourceWatching
	s.failures = 0
}

func (s *sourceStatus) watchFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SourceFailed
	s.record(err)
}

// failed records a failed per-session call.
func (s *sourceStatus) failed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(err)
	if s.state == SourceWatching && s.failures >= degradedAfter {
		s.state = SourceDegraded
	}
}

// succeeded clears the failure streak after a successful host call.
func (s *sourceStatus) succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	if s.state == SourceDegraded {
		s.state = SourceWatching
	}
}

func (s *sourceStatus) stopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SourceStopped
}

func (s *sourceStatus) record(err error) {
	s.failures++
	s.lastErr = err.Error()
	s.lastErrAt = s.now()
}

func (s *sourceStatus) snapshot(sessions int) SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SourceStatus{
		Source:              s.name,
		State:               s.state,
		Sessions:            sessions,
		ConsecutiveFailures: s.failures,
		LastError:           s.lastErr,
		LastErrorAt:         s.lastErrAt,
	}
}
