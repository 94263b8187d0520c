package model

import "time"

// ServiceType classifies a tracked process. "registry" gets special
// treatment by the process tracker: exactly one live registry record backs
// the persisted RegistryState.
type ServiceType string

const (
	ServiceRegistry ServiceType = "registry"
	ServiceAgent    ServiceType = "agent"
)

// HealthState is the last-observed liveness of a tracked process, as seen by
// the process tracker (distinct from an AgentRegistration's mesh-level
// AgentStatus, which is reported by the agent itself via heartbeat).
type HealthState string

const (
	ProcessHealthUnknown   HealthState = "unknown"
	ProcessHealthRunning   HealthState = "running"
	ProcessHealthUnhealthy HealthState = "unhealthy"
	ProcessHealthDead      HealthState = "dead"
)

// ProcessRecord is the durable record of one spawned subprocess, tracked by
// the Process Tracker (C7) independently of the registry.
type ProcessRecord struct {
	Name           string                 `json:"name"`
	PID            int                    `json:"pid"`
	Command        []string               `json:"command"`
	ServiceType    ServiceType            `json:"service_type"`
	StartedAt      time.Time              `json:"started_at"`
	LastHealthAt   time.Time              `json:"last_health_at,omitempty"`
	LastHealth     HealthState            `json:"last_health,omitempty"`
	Metadata       map[string]string      `json:"metadata,omitempty"`
}

// Clone returns a defensive copy.
func (p *ProcessRecord) Clone() *ProcessRecord {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Command = append([]string(nil), p.Command...)
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// RegistryState is the persisted description of the currently running
// registry process, kept alongside the process tracker's state file. It
// exists iff a "registry" ProcessRecord exists and its pid is live.
type RegistryState struct {
	URL          string                 `json:"url"`
	Host         string                 `json:"host"`
	Port         int                    `json:"port"`
	DatabasePath string                 `json:"database_path"`
	Config       map[string]interface{} `json:"config,omitempty"`
	LastUpdated  time.Time              `json:"last_updated"`
}
