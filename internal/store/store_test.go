package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAgent() *model.AgentRegistration {
	return &model.AgentRegistration{
		ID:        "hello",
		Name:      "hello",
		Namespace: model.DefaultNamespace,
		Endpoint:  "http://localhost:0/hello",
		Status:    model.StatusPending,
		Capabilities: []model.Capability{
			{Name: "greeting", Version: "1.0.0"},
		},
	}
}

func TestRegisterIsUpsertAndBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := eventlog.NewVersioner()

	agent := sampleAgent()
	evType, err := s.Register(ctx, agent, v.Next())
	require.NoError(t, err)
	require.Equal(t, eventlog.Added, evType)
	firstVersion := agent.ResourceVersion

	agent2 := sampleAgent()
	evType, err = s.Register(ctx, agent2, v.Next())
	require.NoError(t, err)
	require.Equal(t, eventlog.Modified, evType)
	require.Greater(t, agent2.ResourceVersion, firstVersion)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "re-registering (name,namespace) should upsert, not duplicate")
}

func TestHeartbeatUnknownAgentFails(t *testing.T) {
	s := newTestStore(t)
	err := s.Heartbeat(context.Background(), "nope", "1", time.Now())
	require.Error(t, err)
}

func TestHeartbeatTransitionsToHealthy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := eventlog.NewVersioner()

	agent := sampleAgent()
	_, err := s.Register(ctx, agent, v.Next())
	require.NoError(t, err)

	err = s.Heartbeat(ctx, agent.ID, v.Next(), time.Now())
	require.NoError(t, err)

	got, err := s.Get(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusHealthy, got.Status)
	require.NotNil(t, got.LastHeartbeat)
}

func TestUnregisterCascadesCapabilities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := eventlog.NewVersioner()

	agent := sampleAgent()
	_, err := s.Register(ctx, agent, v.Next())
	require.NoError(t, err)

	require.NoError(t, s.Unregister(ctx, agent.ID))

	_, err = s.Get(ctx, agent.ID)
	require.Error(t, err)

	caps, err := scanCapabilities(ctx, s.db, agent.ID)
	require.NoError(t, err)
	require.Empty(t, caps)
}
