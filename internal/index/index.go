// Package index implements the in-memory materialized cache (C2): a map of
// agents keyed by id plus the derived capability and namespace indexes. It
// is rebuilt from the store at startup and updated in place after every
// durable write succeeds. Reads take a read lock and hand back cloned
// snapshots so a caller can never observe a half-applied mutation or race
// with a concurrent writer.
package index

import (
	"sort"
	"sync"

	"github.com/meshctl/meshcore/internal/model"
)

// Index is the process-local read cache of the registry.
type Index struct {
	mu sync.RWMutex

	agents     map[string]*model.AgentRegistration
	byCapability map[string]map[string]struct{} // capability name -> set<agent id>
	byNamespace  map[string]map[string]struct{} // namespace -> set<agent id>
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		agents:       make(map[string]*model.AgentRegistration),
		byCapability: make(map[string]map[string]struct{}),
		byNamespace:  make(map[string]map[string]struct{}),
	}
}

// Rebuild replaces the entire index contents, used once at startup after
// loading every agent from the store.
func (idx *Index) Rebuild(agents []*model.AgentRegistration) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.agents = make(map[string]*model.AgentRegistration, len(agents))
	idx.byCapability = make(map[string]map[string]struct{})
	idx.byNamespace = make(map[string]map[string]struct{})
	for _, a := range agents {
		idx.putLocked(a)
	}
}

// Put inserts or replaces one agent's entry. Callers must only call this
// after the corresponding durable write has committed (§4.2).
func (idx *Index) Put(a *model.AgentRegistration) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(a.ID)
	idx.putLocked(a)
}

func (idx *Index) putLocked(a *model.AgentRegistration) {
	cp := a.Clone()
	idx.agents[cp.ID] = cp

	ns, ok := idx.byNamespace[cp.Namespace]
	if !ok {
		ns = make(map[string]struct{})
		idx.byNamespace[cp.Namespace] = ns
	}
	ns[cp.ID] = struct{}{}

	for _, name := range cp.CapabilityNames() {
		set, ok := idx.byCapability[name]
		if !ok {
			set = make(map[string]struct{})
			idx.byCapability[name] = set
		}
		set[cp.ID] = struct{}{}
	}
}

// Remove deletes an agent's entry from every index.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) {
	existing, ok := idx.agents[id]
	if !ok {
		return
	}
	delete(idx.agents, id)
	if set, ok := idx.byNamespace[existing.Namespace]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx.byNamespace, existing.Namespace)
		}
	}
	for _, name := range existing.CapabilityNames() {
		if set, ok := idx.byCapability[name]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.byCapability, name)
			}
		}
	}
}

// Get returns a clone of one agent, or nil if unknown.
func (idx *Index) Get(id string) *model.AgentRegistration {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, ok := idx.agents[id]
	if !ok {
		return nil
	}
	return a.Clone()
}

// All returns a clone of every agent, sorted by id for deterministic output.
func (idx *Index) All() []*model.AgentRegistration {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*model.AgentRegistration, 0, len(idx.agents))
	for _, a := range idx.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCapability returns the ids of agents advertising the given capability
// name, used by the capability index invariant (§8): every agent that
// advertises a capability must appear here.
func (idx *Index) ByCapability(name string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.byCapability[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByNamespace returns the ids of agents registered in the given namespace.
func (idx *Index) ByNamespace(ns string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.byNamespace[ns]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many agents are currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.agents)
}
