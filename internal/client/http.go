package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/ipc"
	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/ws"
)

// ErrUnauthorized is returned when the relay rejects the auth token.
var ErrUnauthorized = errors.New("relay rejected the auth token")

// HTTPClient makes REST calls to the relay.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(ep Endpoint) *HTTPClient {
	hc := &http.Client{}
	if ep.URL == "" {
		hc = ipc.HTTPClient(ep.Socket)
	}
	hc.Timeout = 10 * time.Second
	return &HTTPClient{
		baseURL: ep.baseURL(),
		token:   ep.Token,
		client:  hc,
	}
}

// Control sends POST /api/control/{command}. A command the relay does not
// know yields an error wrapping control.ErrNotImplemented.
func (c *HTTPClient) Control(ctx context.Context, command string) error {
	var out ws.Response
	return c.do(ctx, http.MethodPost, "/api/control/"+url.PathEscape(command), &out)
}

// Sessions fetches /api/sessions.
func (c *HTTPClient) Sessions(ctx context.Context) ([]session.Snapshot, error) {
	var out ws.SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Health fetches /api/health.
func (c *HTTPClient) Health(ctx context.Context) (*ws.HealthResponse, error) {
	var out ws.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks that the relay answers.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotImplemented:
		return fmt.Errorf("%s %s: %w", method, path, control.ErrNotImplemented)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, errorText(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorText extracts the message of a {"error": "..."} body.
func errorText(body []byte) string {
	var r ws.Response
	if json.Unmarshal(body, &r) == nil && r.Error != "" {
		return r.Error
	}
	return strings.TrimSpace(string(body))
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
