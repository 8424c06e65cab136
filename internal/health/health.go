// Package health records the absorbed failures of the relay pipeline so that
// silent degradation is observable. Every failure kind the pipeline swallows
// is counted here and surfaced through the relay's /api/health endpoint.
package health

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Kind classifies an absorbed failure.
type Kind int

const (
	// PermissionDenied: the host refused access to session information.
	PermissionDenied Kind = iota
	// ArtworkEncoding: artwork could not be loaded or encoded; the
	// metadata event was still published without it.
	ArtworkEncoding
	// UnregisterRace: a subscription handle was already gone when it was
	// released.
	UnregisterRace
	// UnknownCommand: a control request named a command that does not exist.
	UnknownCommand
	// SubscribeFailed: subscribing to one session failed for a reason
	// other than permissions.
	SubscribeFailed
	// DeliveryFailed: writing an event to the live subscriber failed.
	DeliveryFailed
	// EventDropped: an event was published while nobody was listening.
	EventDropped
)

var kindNames = map[Kind]string{
	PermissionDenied: "permission_denied",
	ArtworkEncoding:  "artwork_encoding",
	UnregisterRace:   "unregister_race",
	UnknownCommand:   "unknown_command",
	SubscribeFailed:  "subscribe_failed",
	DeliveryFailed:   "delivery_failed",
	EventDropped:     "event_dropped",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kind, n := range kindNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", name)
}

// Counter is the per-kind tally held by a Recorder.
type Counter struct {
	Kind      Kind      `json:"kind"`
	Count     int64     `json:"count"`
	LastError string    `json:"lastError,omitempty"`
	LastAt    time.Time `json:"lastAt"`
}

// Recorder counts absorbed failures. The zero value is not usable; use
// NewRecorder. A nil *Recorder ignores all calls so components can run
// without one.
type Recorder struct {
	mu       sync.Mutex
	counters map[Kind]*Counter
	now      func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		counters: make(map[Kind]*Counter),
		now:      time.Now,
	}
}

// Record counts one occurrence of kind. err may be nil.
func (r *Recorder) Record(kind Kind, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[kind]
	if !ok {
		c = &Counter{Kind: kind}
		r.counters[kind] = c
	}
	c.Count++
	c.LastAt = r.now()
	if err != nil {
		c.LastError = err.Error()
	}
}

// Count returns the number of occurrences recorded for kind.
func (r *Recorder) Count(kind Kind) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[kind]; ok {
		return c.Count
	}
	return 0
}

// Snapshot returns a copy of every counter, ordered by kind.
func (r *Recorder) Snapshot() []Counter {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Counter, 0, len(r.counters))
	for k := PermissionDenied; k <= EventDropped; k++ {
		if c, ok := r.counters[k]; ok {
			out = append(out, *c)
		}
	}
	return out
}
