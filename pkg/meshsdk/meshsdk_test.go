package meshsdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/index"
	"github.com/meshctl/meshcore/internal/registry"
	"github.com/meshctl/meshcore/internal/registryapi"
	"github.com/meshctl/meshcore/internal/store"
)

func TestTruthyEnvAcceptsSpecSpellings(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "TRUE", "On"} {
		t.Setenv("MCP_MESH_AUTO_PROCESS", v)
		require.True(t, truthyEnv("MCP_MESH_AUTO_PROCESS", false))
	}
	for _, v := range []string{"false", "0", "no", "off", "garbage"} {
		t.Setenv("MCP_MESH_AUTO_PROCESS", v)
		require.False(t, truthyEnv("MCP_MESH_AUTO_PROCESS", true))
	}
}

func TestRunPipelineSkipsWhenAutoProcessDisabled(t *testing.T) {
	reset()
	t.Cleanup(reset)
	t.Setenv("MCP_MESH_AUTO_PROCESS", "false")

	ts, reg := newTestRegistryServer(t)
	client := NewClient(ts.URL)

	Register(Descriptor{
		FunctionName: "disabled_agent", AgentName: "disabled-agent", Endpoint: "http://localhost:9",
		Capabilities: []CapabilityDescriptor{{Name: "greeting", Version: "1.0.0"}},
	}, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RunPipeline(ctx, client)
	time.Sleep(SettleDelay + 50*time.Millisecond)

	_, err := reg.Get("disabled-agent")
	require.Error(t, err)
}

func newTestRegistryServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, index.New(), eventlog.NewLog(), eventlog.NewVersioner(), nil)
	require.NoError(t, reg.LoadFromStore(context.Background()))

	s := registryapi.New(reg, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func TestRunPipelineRegistersAndSkipsDuplicates(t *testing.T) {
	reset()
	t.Cleanup(reset)

	ts, reg := newTestRegistryServer(t)
	client := NewClient(ts.URL)

	Register(Descriptor{
		FunctionName: "greeter", AgentName: "greeter", Endpoint: "http://localhost:9",
		Capabilities: []CapabilityDescriptor{{Name: "greeting", Version: "1.0.0"}},
	}, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RunPipeline(ctx, client)
	time.Sleep(SettleDelay + 50*time.Millisecond)

	agent, err := reg.Get("greeter")
	require.NoError(t, err)
	require.Equal(t, "greeter", agent.Name)

	// A second call must be a no-op: nothing new was registered.
	RunPipeline(ctx, client)
	time.Sleep(50 * time.Millisecond)

	again, err := reg.Get("greeter")
	require.NoError(t, err)
	require.Equal(t, agent.ResourceVersion, again.ResourceVersion)
}

func TestResolverCachesSuccessfulResolution(t *testing.T) {
	ts, _ := newTestRegistryServer(t)
	client := NewClient(ts.URL)

	ctx := context.Background()
	require.NoError(t, client.registerWithMetadata(ctx, "db", Descriptor{
		Capabilities: []CapabilityDescriptor{{Name: "storage", Version: "1.0.0"}},
	}))

	resolver := NewResolver(client).WithBudget(2 * time.Second)
	v1, err := resolver.Resolve(ctx, Dependency{Kind: ByName, Identifier: "storage"})
	require.NoError(t, err)
	handle, ok := v1.(*RemoteHandle)
	require.True(t, ok)
	require.Equal(t, "db", handle.AgentID)

	v2, err := resolver.Resolve(ctx, Dependency{Kind: ByName, Identifier: "storage"})
	require.NoError(t, err)
	require.Same(t, v1.(*RemoteHandle), v2.(*RemoteHandle))
}

func TestResolverFallsBackToLocalFactory(t *testing.T) {
	ts, _ := newTestRegistryServer(t)
	client := NewClient(ts.URL)
	resolver := NewResolver(client).WithBudget(300 * time.Millisecond)

	type localThing struct{ name string }
	resolver.RegisterLocalFactory("cache", func() (any, error) {
		return &localThing{name: "in-process"}, nil
	})

	v, err := resolver.Resolve(context.Background(), Dependency{Kind: ByConcreteType, Identifier: "cache"})
	require.NoError(t, err)
	require.Equal(t, "in-process", v.(*localThing).name)
}

func TestResolverOptionalDependencyReturnsNilWithoutError(t *testing.T) {
	ts, _ := newTestRegistryServer(t)
	client := NewClient(ts.URL)
	resolver := NewResolver(client).WithBudget(200 * time.Millisecond)

	v, err := resolver.Resolve(context.Background(), Dependency{Kind: ByName, Identifier: "nonexistent", Optional: true})
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestResolverRequiredDependencyFailureReturnsError(t *testing.T) {
	ts, _ := newTestRegistryServer(t)
	client := NewClient(ts.URL)
	resolver := NewResolver(client).WithBudget(200 * time.Millisecond)

	_, err := resolver.Resolve(context.Background(), Dependency{Kind: ByName, Identifier: "nonexistent"})
	require.Error(t, err)
}
