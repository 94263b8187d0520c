package meshsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/meshctl/meshcore/pkg/logging"
)

const component = "meshsdk"

// SettleDelay is how long RunPipeline waits after being invoked before
// registering anything, giving the rest of the agent's init code time to
// finish running (§4.10).
const SettleDelay = 200 * time.Millisecond

// DefaultHealthInterval is used for a descriptor that doesn't override it.
const DefaultHealthInterval = 30 * time.Second

// Client talks to the Registry API (C4) from within an agent process.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client pointed at a running registry's base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// truthyEnv reports whether an MCP_MESH_* boolean toggle is set to one of
// the accepted truthy spellings (§6): "true", "1", "yes", "on",
// case-insensitively. An unset variable defaults to def.
func truthyEnv(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// RunPipeline runs the self-registration pipeline (C10) for every
// registration accumulated by Register so far: it waits SettleDelay, POSTs
// each one to register_with_metadata, and starts a per-agent heartbeat
// loop that runs until ctx is cancelled. Registration failures are logged,
// not returned, so one broken registration never stops an agent whose
// other capabilities are fine.
//
// Per §4.14, the pipeline first checks MCP_MESH_AUTO_PROCESS: if it's set
// and falsy, RunPipeline is a no-op, leaving every decorated function inert
// for a pure-library import. MCP_MESH_AUTO_ENHANCE gates nothing further
// today (no dependency-injection enhancement step is disableable
// independently) but is read for parity with the source's pair of toggles.
func RunPipeline(ctx context.Context, client *Client) {
	if !truthyEnv("MCP_MESH_AUTO_PROCESS", true) {
		logging.Info(component, "MCP_MESH_AUTO_PROCESS is false; skipping self-registration")
		return
	}
	_ = truthyEnv("MCP_MESH_AUTO_ENHANCE", true)

	select {
	case <-time.After(SettleDelay):
	case <-ctx.Done():
		return
	}

	for _, r := range pending() {
		agentID := r.desc.AgentName
		if agentID == "" {
			agentID = r.desc.FunctionName
		}

		if err := client.registerWithMetadata(ctx, agentID, r.desc); err != nil {
			logging.Error(component, err, "failed to register agent %s; continuing standalone", agentID)
			continue
		}
		logging.Info(component, "registered agent %s with the mesh", agentID)

		interval := time.Duration(r.desc.HealthInterval) * time.Second
		if interval <= 0 {
			interval = DefaultHealthInterval
		}
		go client.heartbeatLoop(ctx, agentID, interval)
	}
}

func (c *Client) registerWithMetadata(ctx context.Context, agentID string, desc Descriptor) error {
	endpoint := desc.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("http://localhost:0/%s", agentID)
	}

	capabilities := make([]map[string]any, 0, len(desc.Capabilities))
	for _, c := range desc.Capabilities {
		capabilities = append(capabilities, map[string]any{
			"name": c.Name, "version": c.Version, "description": c.Description,
			"category": c.Category, "stability": c.Stability, "tags": c.Tags,
			"security_requirements": c.SecurityRequirements,
			"performance_metrics":   c.PerformanceMetrics,
			"resource_requirements": c.ResourceRequirements,
			"function_name":         desc.FunctionName,
		})
	}

	deps := make([]string, 0, len(desc.Dependencies))
	for _, d := range desc.Dependencies {
		deps = append(deps, d.Identifier)
	}

	payload := map[string]any{
		"agent_id": agentID,
		"metadata": map[string]any{
			"name": agentID, "namespace": desc.Namespace, "endpoint": endpoint,
			"agent_type": desc.AgentType, "security_context": desc.SecurityContext,
			"capabilities": capabilities, "dependencies": deps,
		},
	}

	return c.post(ctx, "/agents/register_with_metadata", payload, nil)
}

func (c *Client) heartbeatLoop(ctx context.Context, agentID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.post(ctx, "/heartbeat", map[string]any{"agent_id": agentID}, nil); err != nil {
				logging.Warn(component, "heartbeat for %s failed: %s", agentID, err)
			}
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", http.MethodPost, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// get issues a GET against the registry, used by the dependency resolver's
// remote lookup.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
