package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/model"
)

func newTestEngine() *Engine {
	idx := index.New()
	idx.Put(&model.AgentRegistration{
		ID: "a1", Name: "a1", Namespace: "default",
		Capabilities: []model.Capability{{Name: "read_file", Version: "1.2.0"}},
	})
	idx.Put(&model.AgentRegistration{
		ID: "a2", Name: "a2", Namespace: "staging",
		Capabilities: []model.Capability{{Name: "write_file", Version: "2.0.0"}},
	})
	return NewEngine(idx)
}

func TestSearchCapabilitiesByFuzzyName(t *testing.T) {
	e := newTestEngine()
	matches := e.SearchCapabilities(CapabilityQuery{Name: "file"})
	require.Len(t, matches, 2)
}

func TestSearchCapabilitiesByVersionConstraint(t *testing.T) {
	e := newTestEngine()
	matches := e.SearchCapabilities(CapabilityQuery{Name: "read_file", VersionConstraint: "^1.0.0"})
	require.Len(t, matches, 1)
	require.Equal(t, "a1", matches[0].Agent.ID)
}

func TestSearchCapabilitiesByNamespace(t *testing.T) {
	e := newTestEngine()
	matches := e.SearchCapabilities(CapabilityQuery{Namespace: "staging"})
	require.Len(t, matches, 1)
	require.Equal(t, "a2", matches[0].Agent.ID)
}

func TestListAgentsFiltersByNamespace(t *testing.T) {
	e := newTestEngine()
	require.Len(t, e.ListAgents("default"), 1)
	require.Len(t, e.ListAgents(""), 2)
}
