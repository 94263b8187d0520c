// Package health implements the Health Monitor (C5): a background ticker
// that walks the in-memory index, compares each agent's last heartbeat
// against its timeout/eviction thresholds, and drives the
// pending/healthy/degraded/expired/offline state machine described in
// §4.5.
package health

import (
	"context"
	"time"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/query"
	"github.com/meshctl/meshcore/internal/store"
	"github.com/meshctl/meshcore/pkg/logging"
)

// DefaultTick is the reconcile interval used when New is given a
// non-positive tick; agents' own health intervals do not change it.
const DefaultTick = 30 * time.Second

// Monitor periodically reconciles agent status against heartbeat age.
type Monitor struct {
	store     *store.Store
	index     *index.Index
	log       *eventlog.Log
	versioner *eventlog.Versioner
	cache     *query.ResponseCache

	tick time.Duration
	now  func() time.Time
}

// New builds a Monitor. tick overrides DefaultTick when positive.
func New(st *store.Store, idx *index.Index, log *eventlog.Log, versioner *eventlog.Versioner, cache *query.ResponseCache, tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Monitor{store: st, index: idx, log: log, versioner: versioner, cache: cache, tick: tick, now: time.Now}
}

// Run blocks, reconciling every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	logging.Info("health", "monitor started with tick interval %s", m.tick)
	for {
		select {
		case <-ctx.Done():
			logging.Info("health", "monitor stopping: %s", ctx.Err())
			return
		case <-ticker.C:
			m.reconcileOnce(ctx)
		}
	}
}

// reconcileOnce walks every agent currently in the index and applies any
// status transition its heartbeat age warrants.
func (m *Monitor) reconcileOnce(ctx context.Context) {
	now := m.now()
	for _, agent := range m.index.All() {
		next := nextStatus(agent, now)
		if next == "" || next == agent.Status {
			continue
		}
		if err := m.transition(ctx, agent, next, now); err != nil {
			logging.Error("health", err, "failed to transition agent %s to %s", agent.ID, next)
		}
	}
}

// nextStatus computes the status an agent should be in given now, or ""
// if no transition is warranted. Agents that have never sent a heartbeat
// are measured from CreatedAt so a slow-starting agent isn't immediately
// evicted.
func nextStatus(agent *model.AgentRegistration, now time.Time) model.AgentStatus {
	if agent.Status == model.StatusOffline {
		return ""
	}

	last := agent.CreatedAt
	if agent.LastHeartbeat != nil {
		last = *agent.LastHeartbeat
	}
	age := now.Sub(last)

	timeout := time.Duration(agent.TimeoutThreshold) * time.Second
	eviction := time.Duration(agent.EvictionThreshold) * time.Second
	if timeout <= 0 && eviction <= 0 {
		t, e := model.ThresholdsFor(agent.AgentType)
		timeout, eviction = time.Duration(t)*time.Second, time.Duration(e)*time.Second
	}

	switch {
	case age >= eviction:
		return model.StatusExpired
	case age >= timeout:
		return model.StatusDegraded
	default:
		return ""
	}
}

func (m *Monitor) transition(ctx context.Context, agent *model.AgentRegistration, next model.AgentStatus, at time.Time) error {
	version := m.versioner.Next()
	if err := m.store.ApplyTransition(ctx, agent.ID, next, version, at); err != nil {
		return err
	}

	updated := agent.Clone()
	updated.Status = next
	updated.ResourceVersion = version
	updated.UpdatedAt = at
	m.index.Put(updated)

	m.log.Publish(eventlog.Event{
		Type:            eventlog.Modified,
		AgentID:         updated.ID,
		ResourceVersion: version,
		Agent:           updated,
		Timestamp:       at,
	})
	if m.cache != nil {
		m.cache.InvalidateAll(ctx)
	}

	logging.Info("health", "agent %s transitioned to %s after %s without a heartbeat", agent.ID, next, at.Sub(lastSeen(agent)))
	return nil
}

func lastSeen(agent *model.AgentRegistration) time.Time {
	if agent.LastHeartbeat != nil {
		return *agent.LastHeartbeat
	}
	return agent.CreatedAt
}
