package cliclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/errs"
)

func TestListAgentsDecodesResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents", r.URL.Path)
		require.Equal(t, "default", r.URL.Query().Get("namespace"))
		json.NewEncoder(w).Encode(map[string]any{
			"agents": []map[string]any{{"id": "hello", "name": "hello-world"}},
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	agents, err := c.ListAgents(t.Context(), map[string]string{"namespace": "default"})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "hello-world", agents[0].Name)
}

func TestAgentHealthNotFoundReturnsNotFoundKind(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, err := c.AgentHealth(t.Context(), "ghost")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestServiceHealthDecodesResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "agents": 3, "watchers": 0})
	}))
	defer ts.Close()

	c := New(ts.URL)
	h, err := c.ServiceHealth(t.Context())
	require.NoError(t, err)
	require.Equal(t, "healthy", h.Status)
	require.Equal(t, 3, h.Agents)
}
