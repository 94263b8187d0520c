// Package meshsdk is the library an agent process links against to
// self-register with the mesh control plane (C10) and to resolve its
// declared dependencies at call time (C11). It replaces the decorator-based
// registration pattern of the original implementation with an explicit
// builder call made once at process startup.
package meshsdk

// CapabilityDescriptor declares one capability a registration exposes,
// mirroring internal/model.Capability's shape without importing the
// registry's internal package from agent code.
type CapabilityDescriptor struct {
	Name                 string
	Version              string
	Description          string
	Category             string
	Stability            string
	Tags                 []string
	SecurityRequirements []string
	PerformanceMetrics   map[string]float64
	ResourceRequirements map[string]interface{}
}

// Descriptor is the declarative registration a handler is registered
// under, the Go-native replacement for a decorator-populated metadata
// mapping.
type Descriptor struct {
	// FunctionName identifies this registration for idempotency checks; it
	// need not match AgentName.
	FunctionName string

	// AgentName is the registry identity this handler registers as. Falls
	// back to FunctionName when empty.
	AgentName string

	// Endpoint is the address other agents should use to reach this one.
	// Left empty, it becomes "http://localhost:0/{agent_id}", the
	// placeholder the registry understands as "reachable over stdio only".
	Endpoint string

	Namespace       string
	AgentType       string
	SecurityContext string
	Version         string

	Capabilities []CapabilityDescriptor
	Dependencies []Dependency

	// HealthInterval overrides DefaultHealthInterval for this agent's
	// heartbeat loop.
	HealthInterval int
}
