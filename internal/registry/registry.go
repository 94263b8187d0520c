// Package registry is the composition root for the registry service (C1-C6):
// it wires the durable store, the in-memory index, the event log and the
// response cache behind one write-path API that performs the
// assign-version/persist/update-index/publish-event critical section
// described in §5.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/query"
	"github.com/meshctl/meshcore/internal/store"
	"github.com/meshctl/meshcore/pkg/logging"
)

const component = "Registry"

// namePattern enforces the normalized agent-name shape: lowercase
// alphanumeric segments joined by single hyphens.
var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// nonAlnumRun matches any run of characters that isn't a lowercase letter
// or digit, used to collapse separators during name normalization.
var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// highSecurityCapabilities are the capabilities an agent must advertise
// before it may declare security_context = "high_security" (§4.4).
var highSecurityCapabilities = []string{"authentication", "authorization", "audit"}

// Registry is the single entry point every transport (HTTP, MCP, CLI)
// mutates the mesh through. All exported methods are safe for concurrent
// use; each serializes its own write through the store's transaction and
// then updates the index and event log before returning.
type Registry struct {
	store     *store.Store
	index     *index.Index
	log       *eventlog.Log
	versioner *eventlog.Versioner
	cache     *query.ResponseCache
}

// New wires a Registry from its component parts. Callers must call
// LoadFromStore once at startup before serving traffic.
func New(st *store.Store, idx *index.Index, log *eventlog.Log, versioner *eventlog.Versioner, cache *query.ResponseCache) *Registry {
	return &Registry{store: st, index: idx, log: log, versioner: versioner, cache: cache}
}

// LoadFromStore rebuilds the in-memory index from the durable store and
// seeds the versioner so it never reissues a resource_version from a prior
// process lifetime.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	agents, err := r.store.List(ctx)
	if err != nil {
		return errs.Wrap(errs.StoreFailure, component, "", err)
	}
	r.index.Rebuild(agents)
	for _, a := range agents {
		r.versioner.Observe(a.ResourceVersion)
	}
	logging.Info(component, "loaded %d agents from store", len(agents))
	return nil
}

// Register validates, normalizes, and upserts an agent registration,
// performing the version-assign/persist/index/event critical section.
func (r *Registry) Register(ctx context.Context, agent *model.AgentRegistration) (*model.AgentRegistration, error) {
	normalizeName(agent)
	if err := validate(agent); err != nil {
		return nil, err
	}
	normalize(agent)

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	version := r.versioner.Next()

	evType, err := r.store.Register(ctx, agent, version)
	if err != nil {
		return nil, errs.Wrap(errs.StoreFailure, component, agent.Name, err)
	}

	r.index.Put(agent)
	r.log.Publish(eventlog.Event{
		Type:            evType,
		AgentID:         agent.ID,
		ResourceVersion: agent.ResourceVersion,
		Agent:           agent.Clone(),
		Timestamp:       time.Now().UTC(),
	})
	if r.cache != nil {
		r.cache.InvalidateAll(ctx)
	}

	logging.Info(component, "%s agent %s (%s)", evType, agent.Name, agent.ID)
	return agent.Clone(), nil
}

// RegisterContract attaches a ServiceContract to an already-registered
// agent.
func (r *Registry) RegisterContract(ctx context.Context, contract *model.ServiceContract) error {
	if r.index.Get(contract.AgentID) == nil {
		return errs.New(errs.NotFound, component, contract.AgentID)
	}
	if err := r.store.RegisterContract(ctx, contract); err != nil {
		return errs.Wrap(errs.StoreFailure, component, contract.AgentID, err)
	}
	return nil
}

// Unregister removes an agent from the mesh entirely.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	if err := r.store.Unregister(ctx, id); err != nil {
		return errs.Wrap(errs.NotFound, component, id, err)
	}
	r.index.Remove(id)
	r.log.Publish(eventlog.Event{
		Type:            eventlog.Deleted,
		AgentID:         id,
		ResourceVersion: r.versioner.Next(),
		Timestamp:       time.Now().UTC(),
	})
	if r.cache != nil {
		r.cache.InvalidateAll(ctx)
	}
	logging.Info(component, "unregistered agent %s", id)
	return nil
}

// Heartbeat records a liveness signal from id, resetting it to healthy.
func (r *Registry) Heartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC()
	version := r.versioner.Next()
	if err := r.store.Heartbeat(ctx, id, version, now); err != nil {
		return errs.Wrap(errs.NotFound, component, id, err)
	}

	agent := r.index.Get(id)
	if agent != nil {
		agent.Status = model.StatusHealthy
		agent.LastHeartbeat = &now
		agent.UpdatedAt = now
		agent.ResourceVersion = version
		r.index.Put(agent)
	}
	r.log.Publish(eventlog.Event{Type: eventlog.Modified, AgentID: id, ResourceVersion: version, Agent: agent, Timestamp: now})
	if r.cache != nil {
		r.cache.InvalidateAll(ctx)
	}
	return nil
}

// Index exposes the underlying in-memory index for read-only query use by
// the HTTP/MCP transport layer.
func (r *Registry) Index() *index.Index { return r.index }

// Watch exposes the underlying event log so transports can stream changes.
func (r *Registry) Watch() (<-chan eventlog.Event, func()) { return r.log.Watch() }

// WatcherCount reports how many live event-log watchers are attached.
func (r *Registry) WatcherCount() int { return r.log.WatcherCount() }

// Get returns a single agent, or errs.NotFound.
func (r *Registry) Get(id string) (*model.AgentRegistration, error) {
	a := r.index.Get(id)
	if a == nil {
		return nil, errs.New(errs.NotFound, component, id)
	}
	return a, nil
}

// validate enforces the required-field and security-context invariants of
// §4.4 before anything touches the store.
func validate(agent *model.AgentRegistration) error {
	if agent.Name == "" {
		return errs.New(errs.InvalidInput, component, "name is required")
	}
	if !ValidName(agent.Name) {
		return errs.New(errs.InvalidInput, component,
			fmt.Sprintf("name %q must be lowercase alphanumeric segments joined by hyphens", agent.Name))
	}
	if agent.Endpoint == "" {
		return errs.New(errs.InvalidInput, component, "endpoint is required")
	}
	if agent.SecurityContext == "high_security" {
		have := make(map[string]struct{}, len(agent.Capabilities))
		for _, c := range agent.Capabilities {
			have[c.Name] = struct{}{}
		}
		for _, required := range highSecurityCapabilities {
			if _, ok := have[required]; !ok {
				return errs.New(errs.SecurityValidation, component,
					fmt.Sprintf("high_security agent %s missing required capability %q", agent.Name, required))
			}
		}
	}
	return nil
}

// normalize fills derived defaults (namespace, status, thresholds, each
// capability's agent id) once validation has passed.
func normalize(agent *model.AgentRegistration) {
	if agent.Namespace == "" {
		agent.Namespace = model.DefaultNamespace
	}
	if agent.Status == "" {
		agent.Status = model.StatusPending
	}
	if agent.TimeoutThreshold == 0 && agent.EvictionThreshold == 0 {
		agent.TimeoutThreshold, agent.EvictionThreshold = model.ThresholdsFor(agent.AgentType)
	}
	for i := range agent.Capabilities {
		agent.Capabilities[i].AgentID = agent.ID
	}
}

// ValidName reports whether name matches the normalized agent-name shape.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// normalizeName lowercases a registration's name and collapses runs of
// whitespace/underscores into single hyphens, so a caller that sends
// "My Agent_1" ends up stored (and matched) as "my-agent-1".
func normalizeName(agent *model.AgentRegistration) {
	name := strings.ToLower(strings.TrimSpace(agent.Name))
	name = nonAlnumRun.ReplaceAllString(name, "-")
	agent.Name = strings.Trim(name, "-")
}
