package query

import (
	"sort"

	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/model"
)

// CapabilityQuery narrows a capability search. An empty Name matches every
// capability; an empty VersionConstraint matches every version.
type CapabilityQuery struct {
	Name              string
	VersionConstraint string
	Namespace         string
}

// CapabilityMatch pairs a matched capability with the agent that advertises
// it.
type CapabilityMatch struct {
	Agent      *model.AgentRegistration
	Capability model.Capability
}

// Engine answers capability and agent queries against the in-memory index,
// combining fuzzy name matching with semver-style version constraints
// (§4.6).
type Engine struct {
	idx *index.Index
}

// NewEngine returns a query engine backed by idx.
func NewEngine(idx *index.Index) *Engine {
	return &Engine{idx: idx}
}

// SearchCapabilities returns every (agent, capability) pair matching q,
// sorted by agent id then capability name for deterministic output.
func (e *Engine) SearchCapabilities(q CapabilityQuery) []CapabilityMatch {
	var out []CapabilityMatch
	for _, agent := range e.idx.All() {
		if q.Namespace != "" && agent.Namespace != q.Namespace {
			continue
		}
		for _, cap := range agent.Capabilities {
			if q.Name != "" && !FuzzyMatch(q.Name, cap.Name) {
				continue
			}
			if q.VersionConstraint != "" && !MatchVersion(q.VersionConstraint, cap.Version) {
				continue
			}
			out = append(out, CapabilityMatch{Agent: agent, Capability: cap})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Agent.ID != out[j].Agent.ID {
			return out[i].Agent.ID < out[j].Agent.ID
		}
		return out[i].Capability.Name < out[j].Capability.Name
	})
	return out
}

// ListAgents returns every indexed agent optionally filtered by namespace,
// sorted by id.
func (e *Engine) ListAgents(namespace string) []*model.AgentRegistration {
	if namespace == "" {
		return e.idx.All()
	}
	ids := e.idx.ByNamespace(namespace)
	out := make([]*model.AgentRegistration, 0, len(ids))
	for _, id := range ids {
		if a := e.idx.Get(id); a != nil {
			out = append(out, a)
		}
	}
	return out
}
