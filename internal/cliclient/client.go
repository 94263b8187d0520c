// Package cliclient is the small HTTP client the command-line tool uses to
// talk to a running registry, distinct from pkg/meshsdk's client: that one
// is linked into agent processes for self-registration, this one is linked
// into the meshctl binary for status/list/logs queries.
package cliclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
)

const component = "CLI"

// Client queries a registry's HTTP surface (C4) on behalf of CLI commands.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client pointed at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// ServiceHealth is the decoded body of GET /health.
type ServiceHealth struct {
	Status   string `json:"status"`
	Agents   int    `json:"agents"`
	Watchers int     `json:"watchers"`
}

// AgentHealth is the decoded body of GET /health/{id}.
type AgentHealth struct {
	Status                string  `json:"status"`
	LastHeartbeat         *string `json:"last_heartbeat"`
	NextHeartbeatExpected *string `json:"next_heartbeat_expected"`
	TimeSinceHeartbeat    float64 `json:"time_since_heartbeat"`
	TimeoutThreshold      int     `json:"timeout_threshold"`
	EvictionThreshold     int     `json:"eviction_threshold"`
	IsExpired             bool    `json:"is_expired"`
	Message               string  `json:"message"`
}

// ListAgents queries GET /agents with the given filters.
func (c *Client) ListAgents(ctx context.Context, filters map[string]string) ([]*model.AgentRegistration, error) {
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	var resp struct {
		Agents []*model.AgentRegistration `json:"agents"`
	}
	if err := c.get(ctx, "/agents?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// ServiceHealth queries GET /health.
func (c *Client) ServiceHealth(ctx context.Context) (*ServiceHealth, error) {
	var h ServiceHealth
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// AgentHealth queries GET /health/{id}.
func (c *Client) AgentHealth(ctx context.Context, agentID string) (*AgentHealth, error) {
	var h AgentHealth
	if err := c.get(ctx, "/health/"+url.PathEscape(agentID), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errs.Wrap(errs.RegistryConnection, component, path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.RegistryConnection, component, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.New(errs.NotFound, component, path)
	}
	if resp.StatusCode >= 300 {
		return errs.New(errs.RegistryConnection, component, fmt.Sprintf("%s: unexpected status %d", path, resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
