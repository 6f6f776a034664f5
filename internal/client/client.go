// Package client polls a running compass server for the active session.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boshu2/contextcompass/internal/server"
	"github.com/boshu2/contextcompass/internal/sessions"
)

// ErrUnexpectedStatus is returned for any non-200 response.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Client talks to the sessions API.
type Client struct {
	// BaseURL is the server root, for example "http://127.0.0.1:3847".
	BaseURL string

	// HTTP defaults to http.DefaultClient.
	HTTP *http.Client
}

// New returns a Client for addr, which may be a host:port or a full URL.
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{BaseURL: base}
}

// Sessions fetches the current snapshot.
func (c *Client) Sessions(ctx context.Context) (sessions.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+server.SessionsPath, nil)
	if err != nil {
		return sessions.Snapshot{}, fmt.Errorf("build request: %w", err)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return sessions.Snapshot{}, fmt.Errorf("get sessions: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // read-only body
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best-effort detail
		return sessions.Snapshot{}, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap sessions.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return sessions.Snapshot{}, fmt.Errorf("decode sessions: %w", err)
	}
	if snap.RecentSessions == nil {
		snap.RecentSessions = []sessions.Session{}
	}
	return snap, nil
}
