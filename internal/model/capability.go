package model

// Stability is the maturity level an agent assigns to one of its
// capabilities.
type Stability string

const (
	StabilityExperimental Stability = "experimental"
	StabilityBeta         Stability = "beta"
	StabilityStable       Stability = "stable"
	StabilityDeprecated   Stability = "deprecated"
)

// Capability is a named, versioned unit of functionality an agent
// advertises. It is identified by (AgentID, Name).
type Capability struct {
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Stability   Stability `json:"stability,omitempty"`
	Tags        []string  `json:"tags,omitempty"`

	ParametersSchema map[string]interface{} `json:"parameters_schema,omitempty"`
	SecurityRequirements []string            `json:"security_requirements,omitempty"`
	PerformanceMetrics   map[string]float64  `json:"performance_metrics,omitempty"`
	ResourceRequirements map[string]interface{} `json:"resource_requirements,omitempty"`

	FunctionName string `json:"function_name,omitempty"`
}

// CompatibilityLevel describes how strictly a ServiceContract's methods may
// evolve across versions.
type CompatibilityLevel string

const (
	CompatStrict   CompatibilityLevel = "strict"
	CompatBackward CompatibilityLevel = "backward"
	CompatForward  CompatibilityLevel = "forward"
)

// ServiceContract is an optional, richer description of an agent's method
// surface, layered on top of its Capabilities.
type ServiceContract struct {
	AgentID            string              `json:"agent_id"`
	ServiceName        string              `json:"service_name"`
	ServiceVersion     string              `json:"service_version"`
	ContractVersion    string              `json:"contract_version"`
	CompatibilityLevel CompatibilityLevel  `json:"compatibility_level"`
	Methods            []MethodMetadata    `json:"methods,omitempty"`
}

// MethodType enumerates the shapes a method declared in a ServiceContract
// can take.
type MethodType string

const (
	MethodFunction      MethodType = "function"
	MethodInstance      MethodType = "instance"
	MethodClass         MethodType = "class"
	MethodStatic        MethodType = "static"
	MethodAsyncFunction MethodType = "async_function"
	MethodAsyncMethod   MethodType = "async_method"
)

// Parameter describes one positional/named parameter of a MethodMetadata
// signature.
type Parameter struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Kind       string      `json:"kind"`
	Default    interface{} `json:"default,omitempty"`
	Optional   bool        `json:"optional"`
	Position   int         `json:"position"`
}

// Signature is the structured parameter/return description of a method.
type Signature struct {
	Parameters []Parameter `json:"parameters,omitempty"`
	ReturnType string      `json:"return_type,omitempty"`
}

// MethodMetadata describes one method an agent's contract exposes.
type MethodMetadata struct {
	MethodName           string     `json:"method_name"`
	Signature            Signature  `json:"signature"`
	IsAsync              bool       `json:"is_async"`
	MethodType           MethodType `json:"method_type"`
	Docstring            string     `json:"docstring,omitempty"`
	StabilityLevel       Stability  `json:"stability_level,omitempty"`
	DeprecationWarning   string     `json:"deprecation_warning,omitempty"`
	ExpectedComplexity   string     `json:"expected_complexity,omitempty"`
	TimeoutHint          float64    `json:"timeout_hint,omitempty"`
	ResourceRequirements map[string]interface{} `json:"resource_requirements,omitempty"`
	Capabilities         []string   `json:"capabilities,omitempty"`
}
