package registryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/registry"
	"github.com/meshctl/meshcore/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, index.New(), eventlog.NewLog(), eventlog.NewVersioner(), nil)
	require.NoError(t, reg.LoadFromStore(context.Background()))

	s := New(reg, nil)
	return s, httptest.NewServer(s.Handler())
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestRegisterThenDiscoverByCapability(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/agents/register_with_metadata", map[string]any{
		"agent_id": "hello",
		"metadata": map[string]any{
			"name": "Hello_World", "agent_type": "mesh_agent", "endpoint": "http://localhost:1",
			"capabilities": []any{map[string]any{"name": "greeting", "version": "1.0.0"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/agents?capability=greeting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Agents []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Agents, 1)
	require.Equal(t, "hello-world", body.Agents[0].Name)
	require.Equal(t, "pending", body.Agents[0].Status)
}

func TestHeartbeatDrivesHealthy(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	doJSON(t, http.MethodPost, ts.URL+"/agents/register_with_metadata", map[string]any{
		"agent_id": "hello", "metadata": map[string]any{"name": "hello", "endpoint": "http://localhost:1"},
	})
	resp := doJSON(t, http.MethodPost, ts.URL+"/heartbeat", map[string]any{"agent_id": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/health/hello", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "healthy", health["status"])
	require.Less(t, health["time_since_heartbeat"].(float64), 5.0)
}

func TestHeartbeatUnknownAgentReturns404(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()
	resp := doJSON(t, http.MethodPost, ts.URL+"/heartbeat", map[string]any{"agent_id": "nope"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFuzzyCapabilityDiscovery(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	names := []string{"read_file", "write_file", "execute_command"}
	for i, n := range names {
		doJSON(t, http.MethodPost, ts.URL+"/agents/register_with_metadata", map[string]any{
			"agent_id": n, "metadata": map[string]any{
				"name": n, "endpoint": "http://localhost:1",
				"capabilities": []any{map[string]any{"name": n, "version": "1.0.0"}},
			},
		})
		_ = i
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/agents?capability=file&fuzzy_match=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Agents []struct{ Name string `json:"name"` } `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Agents, 2)
}

func TestCapabilityVersionConstraint(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	versions := []string{"1.0.0", "1.5.2", "2.1.0"}
	for i, v := range versions {
		doJSON(t, http.MethodPost, ts.URL+"/agents/register_with_metadata", map[string]any{
			"agent_id": "a" + string(rune('0'+i)), "metadata": map[string]any{
				"name": "a" + string(rune('0'+i)), "endpoint": "http://localhost:1",
				"capabilities": []any{map[string]any{"name": "x", "version": v}},
			},
		})
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/capabilities?name=x&version_constraint=%3E%3D2.0.0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Capabilities []struct{ Version string `json:"version"` } `json:"capabilities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Capabilities, 1)
	require.Equal(t, "2.1.0", body.Capabilities[0].Version)
}
