package meshsdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/pkg/logging"
)

// DependencyKind tags how a Dependency's Identifier should be interpreted,
// replacing the original's reflection-based type resolution with an
// explicit, idiomatic-Go choice made by the caller.
type DependencyKind string

const (
	// ByName resolves against a capability name advertised by some agent.
	ByName DependencyKind = "by_name"
	// ByInterface resolves against a registered local factory keyed by an
	// interface name, used when any implementation will do.
	ByInterface DependencyKind = "by_interface"
	// ByConcreteType resolves against a registered local factory keyed by a
	// concrete type name.
	ByConcreteType DependencyKind = "by_concrete_type"
)

// Dependency is one capability a registration declares it needs.
type Dependency struct {
	Kind       DependencyKind
	Identifier string
	Optional   bool
}

// LocalFactory instantiates a local implementation of a dependency within
// the current process, the fallback path when no remote provider exists.
type LocalFactory func() (any, error)

// RemoteHandle is returned for a dependency resolved against another mesh
// agent: enough information for caller code to dial the agent itself,
// since the SDK has no knowledge of the wire protocol a given capability
// speaks.
type RemoteHandle struct {
	AgentID    string
	Endpoint   string
	Capability string
}

// DefaultBudget is the total wall-clock time Resolve spends before giving
// up, split 3/4 remote and 1/4 local per §4.11.
const DefaultBudget = 30 * time.Second

// cacheTTL is how long a successful resolution is reused for the same
// identifier.
const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	value   any
	expires time.Time
}

// Resolver implements the remote-first/local-fallback dependency
// resolution described in §4.11.
type Resolver struct {
	client *Client
	budget time.Duration

	mu       sync.Mutex
	factories map[string]LocalFactory
	cache     map[string]cacheEntry
}

// NewResolver builds a Resolver that queries client for remote providers.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client, budget: DefaultBudget, factories: make(map[string]LocalFactory), cache: make(map[string]cacheEntry)}
}

// WithBudget overrides DefaultBudget, mostly for tests that can't wait 30s.
func (r *Resolver) WithBudget(d time.Duration) *Resolver {
	r.budget = d
	return r
}

// RegisterLocalFactory registers the in-process fallback for identifier,
// addressed by ByInterface or ByConcreteType.
func (r *Resolver) RegisterLocalFactory(identifier string, factory LocalFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[identifier] = factory
}

// Resolve resolves dep: cache hit, then remote lookup against the registry,
// then local factory, in that order. Optional dependencies that can't be
// resolved return (nil, nil); required ones return a DependencyResolution
// error.
func (r *Resolver) Resolve(ctx context.Context, dep Dependency) (any, error) {
	if v, ok := r.cached(dep.Identifier); ok {
		return v, nil
	}

	deadline := time.Now().Add(r.budget)
	remoteBudget := r.budget * 3 / 4

	if dep.Kind == ByName || dep.Kind == "" {
		remoteCtx, cancel := context.WithTimeout(ctx, remoteBudget)
		v, err := r.resolveRemote(remoteCtx, dep.Identifier)
		cancel()
		if err == nil {
			r.store(dep.Identifier, v)
			return v, nil
		}
		logging.Debug(component, "remote resolution of %s failed (%s), falling back to local", dep.Identifier, err)
	}

	localCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	v, err := r.resolveLocal(localCtx, dep.Identifier)
	if err == nil {
		r.store(dep.Identifier, v)
		return v, nil
	}

	if dep.Optional {
		return nil, nil
	}
	return nil, errs.Wrap(errs.DependencyResolution, component, dep.Identifier, err)
}

func (r *Resolver) cached(identifier string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[identifier]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (r *Resolver) store(identifier string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[identifier] = cacheEntry{value: value, expires: time.Now().Add(cacheTTL)}
}

func (r *Resolver) resolveRemote(ctx context.Context, capability string) (any, error) {
	var resp struct {
		Agents []struct {
			ID       string `json:"id"`
			Endpoint string `json:"endpoint"`
		} `json:"agents"`
	}
	if err := r.client.get(ctx, "/agents?capability="+capability, &resp); err != nil {
		return nil, err
	}
	if len(resp.Agents) == 0 {
		return nil, fmt.Errorf("no agent advertises capability %q", capability)
	}
	return &RemoteHandle{AgentID: resp.Agents[0].ID, Endpoint: resp.Agents[0].Endpoint, Capability: capability}, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, identifier string) (any, error) {
	r.mu.Lock()
	factory, ok := r.factories[identifier]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no local factory registered for %q", identifier)
	}

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := factory()
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
