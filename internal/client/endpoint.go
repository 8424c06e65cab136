// Package client talks to a running relay from the consumer side: control
// and status calls over HTTP, and the event stream over a websocket.
package client

import (
	"strings"

	"github.com/media-relay/mediarelay/internal/config"
	"github.com/media-relay/mediarelay/internal/ipc"
)

// socketHost is the placeholder host used in URLs sent over the local socket.
const socketHost = "mediarelay"

// Endpoint locates a relay. When URL is empty every request goes through the
// local socket at Socket.
type Endpoint struct {
	URL    string
	Socket string
	Token  string
}

// FromConfig picks the relay the local daemon would serve with cfg.
func FromConfig(cfg *config.Config) Endpoint {
	ep := Endpoint{URL: cfg.Relay.URL, Token: cfg.Server.AuthToken}
	if ep.URL != "" {
		return ep
	}
	switch cfg.Server.Socket {
	case "-":
		ep.URL = "http://" + cfg.Addr()
	case "":
		ep.Socket = ipc.DefaultPath()
	default:
		ep.Socket = cfg.Server.Socket
	}
	return ep
}

func (e Endpoint) baseURL() string {
	if e.URL == "" {
		return "http://" + socketHost
	}
	return strings.TrimRight(e.URL, "/")
}

func (e Endpoint) wsURL() string {
	base := e.baseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (e Endpoint) String() string {
	if e.URL == "" {
		return "unix:" + e.Socket
	}
	return e.URL
}
