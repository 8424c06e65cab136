package ws

import (
	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/session"
)

// Response is the body of every control reply. Error is empty on success.
type Response struct {
	Error string `json:"error"`
}

const errNotImplementedText = "not implemented"

// CloseReplaced is the websocket close code sent to a listener whose slot
// was taken by a newer one.
const CloseReplaced = 4001

type SessionsResponse struct {
	Sessions []session.Snapshot `json:"sessions"`
}

type HealthResponse struct {
	Transport State                `json:"transport"`
	Source    monitor.SourceStatus `json:"source"`
	Errors    []health.Counter     `json:"errors"`
}
