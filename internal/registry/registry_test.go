package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New(st, index.New(), eventlog.NewLog(), eventlog.NewVersioner(), nil)
}

func TestRegisterNormalizesNameAndAssignsDefaults(t *testing.T) {
	r := newTestRegistry(t)
	agent := &model.AgentRegistration{Name: "My Agent_1", Endpoint: "http://localhost:9000"}

	got, err := r.Register(context.Background(), agent)
	require.NoError(t, err)
	require.Equal(t, "my-agent-1", got.Name)
	require.Equal(t, model.DefaultNamespace, got.Namespace)
	require.Equal(t, model.StatusPending, got.Status)
	require.NotEmpty(t, got.ID)
	require.NotEmpty(t, got.ResourceVersion)
}

func TestRegisterRejectsMissingEndpoint(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(context.Background(), &model.AgentRegistration{Name: "agent"})
	require.Error(t, err)
	require.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestRegisterEnforcesHighSecurityCapabilities(t *testing.T) {
	r := newTestRegistry(t)
	agent := &model.AgentRegistration{
		Name: "secure-agent", Endpoint: "http://localhost:9000", SecurityContext: "high_security",
		Capabilities: []model.Capability{{Name: "authentication"}},
	}
	_, err := r.Register(context.Background(), agent)
	require.Error(t, err)
	require.Equal(t, errs.SecurityValidation, errs.KindOf(err))
}

func TestRegisterAllowsHighSecurityWithAllRequiredCapabilities(t *testing.T) {
	r := newTestRegistry(t)
	agent := &model.AgentRegistration{
		Name: "secure-agent", Endpoint: "http://localhost:9000", SecurityContext: "high_security",
		Capabilities: []model.Capability{{Name: "authentication"}, {Name: "authorization"}, {Name: "audit"}},
	}
	_, err := r.Register(context.Background(), agent)
	require.NoError(t, err)
}

func TestHeartbeatUnknownAgentReturnsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Heartbeat(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestUnregisterRemovesFromIndex(t *testing.T) {
	r := newTestRegistry(t)
	agent, err := r.Register(context.Background(), &model.AgentRegistration{Name: "agent", Endpoint: "http://x"})
	require.NoError(t, err)

	require.NoError(t, r.Unregister(context.Background(), agent.ID))

	_, err = r.Get(agent.ID)
	require.Error(t, err)
}

func TestLoadFromStoreRebuildsIndex(t *testing.T) {
	r := newTestRegistry(t)
	agent, err := r.Register(context.Background(), &model.AgentRegistration{Name: "agent", Endpoint: "http://x"})
	require.NoError(t, err)

	r.index.Remove(agent.ID)
	require.NoError(t, r.LoadFromStore(context.Background()))

	_, err = r.Get(agent.ID)
	require.NoError(t, err)
}
