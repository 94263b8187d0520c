// Package model holds the entities that flow through the mesh control
// plane: agent registrations, their capabilities, optional service
// contracts, and the process records the controller tracks for each spawned
// agent. Nothing in this package talks to a database or the network; it is
// the shared vocabulary every other package imports.
package model

import "time"

// AgentStatus is the lifecycle state of an AgentRegistration. Transitions
// are driven by the health monitor (internal/health) on timeout, and reset
// to StatusHealthy whenever the agent sends a heartbeat.
type AgentStatus string

const (
	StatusPending  AgentStatus = "pending"
	StatusHealthy  AgentStatus = "healthy"
	StatusDegraded AgentStatus = "degraded"
	StatusExpired  AgentStatus = "expired"
	StatusOffline  AgentStatus = "offline"
)

// DefaultNamespace is used whenever a registration omits one.
const DefaultNamespace = "default"

// AgentRegistration is the central entity of the registry: the identity,
// endpoint, and health bookkeeping for one mesh participant.
type AgentRegistration struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Endpoint    string `json:"endpoint"`
	Status      AgentStatus `json:"status"`

	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ResourceVersion string    `json:"resource_version"`

	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	HealthInterval    int `json:"health_interval"`
	TimeoutThreshold  int `json:"timeout_threshold"`
	EvictionThreshold int `json:"eviction_threshold"`

	Config          map[string]interface{} `json:"config,omitempty"`
	SecurityContext string                 `json:"security_context,omitempty"`
	Dependencies    []string               `json:"dependencies,omitempty"`

	Capabilities []Capability `json:"capabilities,omitempty"`

	AgentType string `json:"agent_type,omitempty"`
}

// Clone returns a deep-enough copy for handing a snapshot to a reader
// without risking a data race with a concurrent mutation of the original.
func (a *AgentRegistration) Clone() *AgentRegistration {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Labels = cloneStringMap(a.Labels)
	cp.Annotations = cloneStringMap(a.Annotations)
	cp.Dependencies = append([]string(nil), a.Dependencies...)
	cp.Capabilities = make([]Capability, len(a.Capabilities))
	copy(cp.Capabilities, a.Capabilities)
	if a.Config != nil {
		cp.Config = make(map[string]interface{}, len(a.Config))
		for k, v := range a.Config {
			cp.Config[k] = v
		}
	}
	if a.LastHeartbeat != nil {
		t := *a.LastHeartbeat
		cp.LastHeartbeat = &t
	}
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// CapabilityNames returns the flat list of capability names this agent
// advertises, used to maintain the capability index.
func (a *AgentRegistration) CapabilityNames() []string {
	names := make([]string, len(a.Capabilities))
	for i, c := range a.Capabilities {
		names[i] = c.Name
	}
	return names
}

// AgentTypeThresholds maps an agent_type to its default timeout/eviction
// pair, applied at registration time per §4.5. Unknown types fall back to
// DefaultThresholds.
var AgentTypeThresholds = map[string][2]int{
	"mesh_agent":    {20, 60},
	"worker":        {30, 90},
	"batch":         {60, 300},
	"critical":      {10, 30},
}

// DefaultThresholds is the safe fallback for an unrecognized agent_type.
var DefaultThresholds = [2]int{20, 60}

// ThresholdsFor returns (timeout, eviction) for the given agent type.
func ThresholdsFor(agentType string) (timeout, eviction int) {
	if t, ok := AgentTypeThresholds[agentType]; ok {
		return t[0], t[1]
	}
	return DefaultThresholds[0], DefaultThresholds[1]
}
