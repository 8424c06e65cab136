// Package session holds the data model shared by the relay: session
// descriptions, the normalized Event union with its wire codec, and the
// registry of per-session subscription handles.
package session

// ID identifies one host playback session. For MPRIS players it is the
// player's well-known bus name, which survives owner restarts.
type ID string

// Info describes a session discovered on the host.
type Info struct {
	ID       ID     `json:"id"`
	BusName  string `json:"busName,omitempty"`
	Identity string `json:"identity,omitempty"` // player display name, e.g. "VLC media player"
	PID      int32  `json:"pid,omitempty"`
	Process  string `json:"process,omitempty"`
}

// DisplayName returns the best human-readable name for the session.
func (i Info) DisplayName() string {
	switch {
	case i.Identity != "":
		return i.Identity
	case i.Process != "":
		return i.Process
	default:
		return string(i.ID)
	}
}
