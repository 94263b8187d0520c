// Package mcpapi mounts the same registry operations the HTTP surface
// (internal/registryapi) exposes as named tools over the embedded
// application protocol, per the "mounted subtree" requirement: register_agent,
// register_with_metadata, heartbeat, list_agents, list_capabilities, and
// get_health all call straight into the same Registry and Engine the HTTP
// handlers use, so the two surfaces can never drift against each other.
package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/query"
	"github.com/meshctl/meshcore/internal/registry"
	"github.com/meshctl/meshcore/internal/registryapi"
)

const component = "MCPAPI"

// Server wraps an MCP server exposing the registry's operations as tools.
type Server struct {
	reg    *registry.Registry
	engine *query.Engine
	mcp    *server.MCPServer
}

// New builds a Server backed by reg, registering every tool.
func New(reg *registry.Registry, engine *query.Engine) *Server {
	s := &Server{
		reg:    reg,
		engine: engine,
		mcp: server.NewMCPServer(
			"meshcore-registry", "1.0.0",
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// MCPServer exposes the underlying *server.MCPServer, e.g. for mounting
// under an HTTP subtree via server.NewStreamableHTTPServer, or for
// server.ServeStdio in a standalone binary.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("register_agent",
		mcp.WithDescription("Register an agent with a bare name/endpoint, without capability metadata"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable agent name")),
		mcp.WithString("endpoint", mcp.Required(), mcp.Description("Agent's reachable endpoint URL")),
		mcp.WithString("namespace", mcp.Description("Namespace, defaults to \"default\"")),
	), s.handleRegisterAgent)

	s.mcp.AddTool(mcp.NewTool("register_with_metadata",
		mcp.WithDescription("Register an agent and its capabilities with the mesh"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Stable identifier for the agent")),
		mcp.WithObject("metadata", mcp.Required(), mcp.Description("Agent metadata: name, namespace, endpoint, agent_type, capabilities, dependencies")),
	), s.handleRegisterWithMetadata)

	s.mcp.AddTool(mcp.NewTool("heartbeat",
		mcp.WithDescription("Record a liveness heartbeat for a registered agent"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent to heartbeat")),
	), s.handleHeartbeat)

	s.mcp.AddTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List registered agents, optionally filtered by namespace, status, or capability"),
		mcp.WithString("namespace", mcp.Description("Restrict to this namespace")),
		mcp.WithString("status", mcp.Description("Restrict to this lifecycle status")),
		mcp.WithString("capability", mcp.Description("Restrict to agents advertising this capability")),
		mcp.WithString("version_constraint", mcp.Description("Semver-style constraint applied to the capability filter")),
		mcp.WithBoolean("fuzzy_match", mcp.Description("Fuzzy-match the capability filter instead of requiring an exact name")),
	), s.handleListAgents)

	s.mcp.AddTool(mcp.NewTool("list_capabilities",
		mcp.WithDescription("Search capabilities across the mesh by name, version constraint, or namespace"),
		mcp.WithString("name", mcp.Description("Capability name or fuzzy query")),
		mcp.WithString("version_constraint", mcp.Description("Semver-style constraint, e.g. '>=1.0.0'")),
		mcp.WithString("namespace", mcp.Description("Restrict the search to this namespace")),
	), s.handleListCapabilities)

	s.mcp.AddTool(mcp.NewTool("get_health",
		mcp.WithDescription("Get the liveness/health detail for one agent"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent to query")),
	), s.handleGetHealth)
}

func (s *Server) handleRegisterAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	endpoint, err := req.RequireString("endpoint")
	if err != nil {
		return mcp.NewToolResultError("endpoint is required"), nil
	}
	args := req.GetArguments()
	namespace, _ := args["namespace"].(string)

	agent := &model.AgentRegistration{Name: name, Endpoint: endpoint, Namespace: namespace}
	got, err := s.reg.Register(ctx, agent)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"status": "success", "agent_id": got.ID, "resource_version": got.ResourceVersion})
}

func (s *Server) handleRegisterWithMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	args := req.GetArguments()
	metadata, _ := args["metadata"].(map[string]interface{})

	agent, err := registryapi.MetadataToAgent(agentID, metadata)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	got, err := s.reg.Register(ctx, agent)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"status": "success", "agent_id": got.ID, "resource_version": got.ResourceVersion})
}

func (s *Server) handleHeartbeat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	if err := s.reg.Heartbeat(ctx, agentID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"status": "acknowledged", "agent_id": agentID})
}

func (s *Server) handleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	namespace, _ := args["namespace"].(string)
	status, _ := args["status"].(string)
	capability, _ := args["capability"].(string)
	fuzzy, _ := args["fuzzy_match"].(bool)

	var agents []*model.AgentRegistration
	if capability != "" {
		versionConstraint, _ := args["version_constraint"].(string)
		matches := s.engine.SearchCapabilities(query.CapabilityQuery{Name: capability, VersionConstraint: versionConstraint, Namespace: namespace})
		seen := make(map[string]bool)
		for _, m := range matches {
			if !fuzzy && m.Capability.Name != capability {
				continue
			}
			if !seen[m.Agent.ID] {
				seen[m.Agent.ID] = true
				agents = append(agents, m.Agent)
			}
		}
	} else {
		agents = s.engine.ListAgents(namespace)
	}

	if status != "" {
		filtered := agents[:0]
		for _, a := range agents {
			if string(a.Status) == status {
				filtered = append(filtered, a)
			}
		}
		agents = filtered
	}

	return jsonResult(map[string]any{"agents": agents})
}

func (s *Server) handleListCapabilities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["name"].(string)
	versionConstraint, _ := args["version_constraint"].(string)
	namespace, _ := args["namespace"].(string)

	matches := s.engine.SearchCapabilities(query.CapabilityQuery{Name: name, VersionConstraint: versionConstraint, Namespace: namespace})
	return jsonResult(map[string]any{"capabilities": matches})
}

func (s *Server) handleGetHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	agent, err := s.reg.Get(agentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"status": agent.Status, "last_heartbeat": agent.LastHeartbeat})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

