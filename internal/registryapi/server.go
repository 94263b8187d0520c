// Package registryapi implements the Registry API (C4): the HTTP JSON
// surface every agent and CLI invocation talks to, plus the Prometheus
// exposition endpoint. internal/mcpapi mounts the equivalent operations as
// MCP tools over the same Registry.
package registryapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/query"
	"github.com/meshctl/meshcore/internal/registry"
	"github.com/meshctl/meshcore/pkg/logging"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const component = "RegistryAPI"

// Server exposes a Registry over HTTP.
type Server struct {
	reg     *registry.Registry
	engine  *query.Engine
	cache   *query.ResponseCache
	metrics *Metrics
	mux     *http.ServeMux
}

// New builds a Server wired to reg, ready to Handler().
func New(reg *registry.Registry, cache *query.ResponseCache) *Server {
	s := &Server{
		reg:     reg,
		engine:  query.NewEngine(reg.Index()),
		cache:   cache,
		metrics: NewMetrics(),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler { return s.instrument(s.mux) }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("POST /agents/register_with_metadata", s.handleRegister)
	s.mux.HandleFunc("GET /agents", s.handleListAgents)
	s.mux.HandleFunc("GET /capabilities", s.handleListCapabilities)
	s.mux.HandleFunc("GET /health", s.handleServiceHealth)
	s.mux.HandleFunc("GET /health/{id}", s.handleAgentHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetricsJSON)
	promHandler := promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})
	s.mux.HandleFunc("GET /metrics/prometheus", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.agentsTotal.Set(float64(s.reg.Index().Len()))
		s.metrics.watcherGauge.Set(float64(s.reg.WatcherCount()))
		promHandler.ServeHTTP(w, r)
	})
}

// instrument wraps every request with the request-count/duration metrics
// and structured access logging the teacher applies at its HTTP boundary.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		logging.Debug(component, "%s %s -> %d in %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// --- request/response payloads -------------------------------------------

type registerRequest struct {
	AgentID  string                 `json:"agent_id"`
	Metadata map[string]interface{} `json:"metadata"`
}

type heartbeatRequest struct {
	AgentID  string                 `json:"agent_id"`
	Status   string                 `json:"status,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidInput, component, "malformed request body"))
		return
	}

	agent, err := MetadataToAgent(req.AgentID, req.Metadata)
	if err != nil {
		s.metrics.registrations.WithLabelValues("invalid").Inc()
		writeError(w, err)
		return
	}

	got, err := s.reg.Register(r.Context(), agent)
	if err != nil {
		s.metrics.registrations.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	s.metrics.registrations.WithLabelValues("success").Inc()

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success", "agent_id": got.ID, "resource_version": got.ResourceVersion,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidInput, component, "malformed request body"))
		return
	}
	if req.AgentID == "" {
		writeError(w, errs.New(errs.InvalidInput, component, "agent_id is required"))
		return
	}

	if err := s.reg.Heartbeat(r.Context(), req.AgentID); err != nil {
		writeError(w, err)
		return
	}
	s.metrics.heartbeats.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"status": "acknowledged", "agent_id": req.AgentID})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cacheKey := query.Key("/agents", flatten(q))
	var cached []*model.AgentRegistration
	if s.cache != nil && s.cache.Get(r.Context(), cacheKey, &cached) {
		writeJSON(w, http.StatusOK, map[string]any{"agents": cached})
		return
	}

	agents := s.engine.ListAgents(q.Get("namespace"))
	agents = filterByStatus(agents, q.Get("status"))
	agents = filterByLabelSelector(agents, q.Get("label_selector"))
	if capName := q.Get("capability"); capName != "" {
		fuzzy := q.Get("fuzzy_match") == "true"
		agents = filterByCapability(agents, capName, q.Get("version_constraint"), fuzzy)
	}

	if s.cache != nil {
		s.cache.Set(r.Context(), cacheKey, agents)
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if agentID := q.Get("agent_id"); agentID != "" {
		agent, err := s.reg.Get(agentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"capabilities": agent.Capabilities})
		return
	}

	cq := query.CapabilityQuery{
		Name:              q.Get("name"),
		VersionConstraint: q.Get("version_constraint"),
		Namespace:         q.Get("agent_namespace"),
	}
	matches := s.engine.SearchCapabilities(cq)
	matches = filterCapabilityMatches(matches, q)

	caps := make([]model.Capability, 0, len(matches))
	for _, m := range matches {
		caps = append(caps, m.Capability)
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": caps})
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy", "agents": s.reg.Index().Len(), "watchers": s.reg.WatcherCount(),
	})
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	agent, err := s.reg.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentHealth(agent))
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": s.reg.Index().Len(), "watchers": s.reg.WatcherCount(),
	})
}

// agentHealth computes the per-agent health payload described in §6.
func agentHealth(agent *model.AgentRegistration) map[string]any {
	now := time.Now().UTC()
	lastSeen := agent.CreatedAt
	if agent.LastHeartbeat != nil {
		lastSeen = *agent.LastHeartbeat
	}
	since := now.Sub(lastSeen).Seconds()

	timeout, eviction := agent.TimeoutThreshold, agent.EvictionThreshold
	if timeout == 0 && eviction == 0 {
		timeout, eviction = model.ThresholdsFor(agent.AgentType)
	}

	message := "agent is healthy"
	switch agent.Status {
	case model.StatusDegraded:
		message = "agent has missed its heartbeat timeout"
	case model.StatusExpired, model.StatusOffline:
		message = "agent has exceeded its eviction threshold"
	case model.StatusPending:
		message = "agent has not yet sent a heartbeat"
	}

	return map[string]any{
		"status":                   agent.Status,
		"last_heartbeat":           agent.LastHeartbeat,
		"next_heartbeat_expected":  lastSeen.Add(time.Duration(timeout) * time.Second),
		"time_since_heartbeat":     since,
		"timeout_threshold":        timeout,
		"eviction_threshold":       eviction,
		"is_expired":               agent.Status == model.StatusExpired,
		"message":                  message,
	}
}

// --- filter helpers ---------------------------------------------------

func filterByStatus(agents []*model.AgentRegistration, status string) []*model.AgentRegistration {
	if status == "" {
		return agents
	}
	out := agents[:0]
	for _, a := range agents {
		if string(a.Status) == status {
			out = append(out, a)
		}
	}
	return out
}

func filterByCapability(agents []*model.AgentRegistration, name, versionConstraint string, fuzzy bool) []*model.AgentRegistration {
	var out []*model.AgentRegistration
	for _, a := range agents {
		for _, c := range a.Capabilities {
			matched := c.Name == name
			if fuzzy {
				matched = query.FuzzyMatch(name, c.Name)
			}
			if !matched {
				continue
			}
			if versionConstraint != "" && !query.MatchVersion(versionConstraint, c.Version) {
				continue
			}
			out = append(out, a)
			break
		}
	}
	return out
}

func filterByLabelSelector(agents []*model.AgentRegistration, selector string) []*model.AgentRegistration {
	if selector == "" {
		return agents
	}
	want := map[string]string{}
	for _, pair := range strings.Split(selector, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			want[kv[0]] = kv[1]
		}
	}
	out := agents[:0]
	for _, a := range agents {
		match := true
		for k, v := range want {
			if a.Labels[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, a)
		}
	}
	return out
}

func filterCapabilityMatches(matches []query.CapabilityMatch, q map[string][]string) []query.CapabilityMatch {
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	descContains := get("description_contains")
	category := get("category")
	stability := get("stability")
	includeDeprecated := get("include_deprecated") == "true"
	fuzzy := get("fuzzy_match") == "true"
	name := get("name")
	var wantTags []string
	if raw := get("tags"); raw != "" {
		wantTags = strings.Split(raw, ",")
	}

	out := matches[:0]
	for _, m := range matches {
		if fuzzy && name != "" && !query.FuzzyMatch(name, m.Capability.Name) {
			continue
		}
		if descContains != "" && !strings.Contains(strings.ToLower(m.Capability.Description), strings.ToLower(descContains)) {
			continue
		}
		if category != "" && m.Capability.Category != category {
			continue
		}
		if stability != "" && string(m.Capability.Stability) != stability {
			continue
		}
		if !includeDeprecated && m.Capability.Stability == model.StabilityDeprecated {
			continue
		}
		if len(wantTags) > 0 && !hasAnyTag(m.Capability.Tags, wantTags) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func flatten(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// MetadataToAgent builds an AgentRegistration from the register_with_metadata
// payload's free-form metadata map.
func MetadataToAgent(agentID string, metadata map[string]interface{}) (*model.AgentRegistration, error) {
	if agentID == "" {
		return nil, errs.New(errs.InvalidInput, component, "agent_id is required")
	}
	agent := &model.AgentRegistration{ID: agentID}

	if v, ok := metadata["name"].(string); ok {
		agent.Name = v
	}
	if v, ok := metadata["namespace"].(string); ok {
		agent.Namespace = v
	}
	if v, ok := metadata["endpoint"].(string); ok {
		agent.Endpoint = v
	}
	if v, ok := metadata["agent_type"].(string); ok {
		agent.AgentType = v
	}
	if v, ok := metadata["security_context"].(string); ok {
		agent.SecurityContext = v
	}
	if v, ok := metadata["config"].(map[string]interface{}); ok {
		agent.Config = v
	}
	if v, ok := metadata["labels"].(map[string]interface{}); ok {
		agent.Labels = toStringMap(v)
	}
	if v, ok := metadata["annotations"].(map[string]interface{}); ok {
		agent.Annotations = toStringMap(v)
	}
	if v, ok := metadata["dependencies"].([]interface{}); ok {
		for _, d := range v {
			if s, ok := d.(string); ok {
				agent.Dependencies = append(agent.Dependencies, s)
			}
		}
	}
	if v, ok := metadata["capabilities"].([]interface{}); ok {
		for _, raw := range v {
			capMap, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			c := model.Capability{}
			if s, ok := capMap["name"].(string); ok {
				c.Name = s
			}
			if s, ok := capMap["version"].(string); ok {
				c.Version = s
			}
			if s, ok := capMap["description"].(string); ok {
				c.Description = s
			}
			if s, ok := capMap["category"].(string); ok {
				c.Category = s
			}
			if s, ok := capMap["stability"].(string); ok {
				c.Stability = model.Stability(s)
			}
			agent.Capabilities = append(agent.Capabilities, c)
		}
	}

	if agent.Endpoint == "" {
		agent.Endpoint = "internal://" + agentID
	}
	return agent, nil
}

func toStringMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// --- response helpers ---------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error(component, err, "failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(errs.KindOf(err))
	logging.Warn(component, "request failed with %s: %s", errs.KindOf(err), err)
	writeJSON(w, status, map[string]any{"status": "error", "message": err.Error()})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.InvalidInput, errs.SecurityValidation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.RegistryTimeout:
		return http.StatusGatewayTimeout
	case errs.RegistryConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
