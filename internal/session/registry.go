package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotSubscribed is returned by a Handle whose host subscription is
// already gone. Releasing such a handle is treated as success by callers.
var ErrNotSubscribed = errors.New("subscription already released")

// Handle releases one host callback registration.
type Handle interface {
	Close() error
}

// Snapshot is a point-in-time copy of one registry entry.
type Snapshot struct {
	Info
	AttachedAt  time.Time `json:"attachedAt"`
	Attachments int       `json:"attachments"`
	Playing     bool      `json:"playing"`
	Focused     bool      `json:"focused"`
}

type entry struct {
	info        Info
	handle      Handle
	attachedAt  time.Time
	attachments int
	playing     bool
}

// Registry owns the subscription handle of every attached session. At most
// one handle is live per session: attaching again closes the previous one.
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]*entry
	focused ID
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[ID]*entry),
		now:     time.Now,
	}
}

// Attach stores h as the live handle of info.ID. If the session was already
// attached its previous handle is closed and the close error, if any, is
// returned; the new handle is stored either way.
func (r *Registry) Attach(info Info, h Handle) error {
	r.mu.Lock()
	prev, ok := r.entries[info.ID]
	if !ok {
		r.entries[info.ID] = &entry{
			info:        info,
			handle:      h,
			attachedAt:  r.now(),
			attachments: 1,
		}
		r.mu.Unlock()
		return nil
	}
	old := prev.handle
	prev.info = info
	prev.handle = h
	prev.attachments++
	r.mu.Unlock()

	return closeHandle(old)
}

// Detach removes the session and closes its handle.
func (r *Registry) Detach(id ID) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, id)
	if r.focused == id {
		r.focused = ""
	}
	r.mu.Unlock()

	return closeHandle(e.handle)
}

// Retain detaches every session whose ID is not in keep and returns the IDs
// that were removed together with the close error of each removed handle.
func (r *Registry) Retain(keep []ID) map[ID]error {
	want := make(map[ID]bool, len(keep))
	for _, id := range keep {
		want[id] = true
	}

	r.mu.RLock()
	var drop []ID
	for id := range r.entries {
		if !want[id] {
			drop = append(drop, id)
		}
	}
	r.mu.RUnlock()

	removed := make(map[ID]error, len(drop))
	for _, id := range drop {
		removed[id] = r.Detach(id)
	}
	return removed
}

// DetachAll releases every handle. Used on shutdown.
func (r *Registry) DetachAll() map[ID]error {
	return r.Retain(nil)
}

// Contains reports whether id currently has a live handle.
func (r *Registry) Contains(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Get returns the info of an attached session.
func (r *Registry) Get(id ID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// Len returns the number of attached sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SetPlaying records the playing flag of a session. A session that starts
// playing takes media focus.
func (r *Registry) SetPlaying(id ID, playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.playing = playing
	if playing {
		r.focused = id
	}
}

// Focused returns the session holding media focus: the last one that
// started playing, or, when that one is gone, any attached session that is
// playing, or finally the earliest attached session.
func (r *Registry) Focused() (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.focusedLocked(); e != nil {
		return e.info, true
	}
	return Info{}, false
}

// focusedLocked resolves the focus entry: the explicitly focused session,
// else a playing one, else the earliest attached. r.mu must be held.
func (r *Registry) focusedLocked() *entry {
	if e, ok := r.entries[r.focused]; ok {
		return e
	}
	var best *entry
	for _, e := range r.entries {
		switch {
		case best == nil:
			best = e
		case e.playing != best.playing:
			if e.playing {
				best = e
			}
		case e.attachedAt.Before(best.attachedAt):
			best = e
		case e.attachedAt.Equal(best.attachedAt) && e.info.ID < best.info.ID:
			best = e
		}
	}
	return best
}

// Snapshots returns a copy of every entry ordered by attach time.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	focus := r.focusedLocked()
	out := make([]Snapshot, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Snapshot{
			Info:        e.info,
			AttachedAt:  e.attachedAt,
			Attachments: e.attachments,
			Playing:     e.playing,
			Focused:     e == focus,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttachedAt.Equal(out[j].AttachedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AttachedAt.Before(out[j].AttachedAt)
	})
	return out
}

func closeHandle(h Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}
