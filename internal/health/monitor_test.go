package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.Store, *index.Index, *eventlog.Versioner) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx := index.New()
	log := eventlog.NewLog()
	v := eventlog.NewVersioner()
	mon := New(st, idx, log, v, nil, time.Hour)
	return mon, st, idx, v
}

func registerAgent(t *testing.T, st *store.Store, idx *index.Index, v *eventlog.Versioner, createdAt time.Time, timeout, eviction int) *model.AgentRegistration {
	t.Helper()
	agent := &model.AgentRegistration{
		ID: "a1", Name: "a1", Namespace: model.DefaultNamespace,
		Status: model.StatusHealthy, CreatedAt: createdAt,
		TimeoutThreshold: timeout, EvictionThreshold: eviction,
	}
	_, err := st.Register(context.Background(), agent, v.Next())
	require.NoError(t, err)
	idx.Put(agent)
	return agent
}

func TestNextStatusHealthyWithinTimeout(t *testing.T) {
	agent := &model.AgentRegistration{Status: model.StatusHealthy, CreatedAt: time.Now(), TimeoutThreshold: 20, EvictionThreshold: 60}
	require.Equal(t, model.AgentStatus(""), nextStatus(agent, time.Now()))
}

func TestNextStatusDegradesPastTimeout(t *testing.T) {
	now := time.Now()
	agent := &model.AgentRegistration{Status: model.StatusHealthy, CreatedAt: now.Add(-25 * time.Second), TimeoutThreshold: 20, EvictionThreshold: 60}
	require.Equal(t, model.StatusDegraded, nextStatus(agent, now))
}

func TestNextStatusExpiresPastEviction(t *testing.T) {
	now := time.Now()
	agent := &model.AgentRegistration{Status: model.StatusDegraded, CreatedAt: now.Add(-61 * time.Second), TimeoutThreshold: 20, EvictionThreshold: 60}
	require.Equal(t, model.StatusExpired, nextStatus(agent, now))
}

func TestNextStatusOfflineNeverReconsidered(t *testing.T) {
	agent := &model.AgentRegistration{Status: model.StatusOffline, CreatedAt: time.Now().Add(-time.Hour), TimeoutThreshold: 1, EvictionThreshold: 1}
	require.Equal(t, model.AgentStatus(""), nextStatus(agent, time.Now()))
}

func TestReconcileOnceTransitionsAndPersists(t *testing.T) {
	mon, st, idx, v := newTestMonitor(t)
	past := time.Now().Add(-30 * time.Second)
	registerAgent(t, st, idx, v, past, 20, 60)

	mon.now = func() time.Time { return past.Add(30 * time.Second) }
	mon.reconcileOnce(context.Background())

	got := idx.Get("a1")
	require.Equal(t, model.StatusDegraded, got.Status)

	stored, err := st.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, model.StatusDegraded, stored.Status)
}
