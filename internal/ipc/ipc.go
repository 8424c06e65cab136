// Package ipc provides the local endpoint of the relay: a unix domain
// socket, or a named pipe on Windows, that serves the same HTTP routes as
// the TCP listener without exposing them on the network.
package ipc

import (
	"context"
	"net"
	"net/http"
)

// HTTPClient returns an HTTP client whose every connection goes to the
// local endpoint at path. Request URLs only need a placeholder host.
func HTTPClient(path string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return Dial(ctx, path)
			},
		},
	}
}

// NetDial adapts Dial to the signature used by dialers such as
// websocket.Dialer.NetDialContext.
func NetDial(path string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, _, _ string) (net.Conn, error) {
		return Dial(ctx, path)
	}
}
