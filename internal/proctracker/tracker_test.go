package proctracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/model"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	tr, err := Open(path)
	require.NoError(t, err)
	return tr
}

func TestTrackAndGet(t *testing.T) {
	tr := newTestTracker(t)
	rec := &model.ProcessRecord{Name: "agent-1", PID: os.Getpid(), ServiceType: model.ServiceAgent}
	require.NoError(t, tr.Track(rec))

	got, err := tr.Get("agent-1")
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), got.PID)
	require.Equal(t, model.ProcessHealthRunning, got.LastHealth)
}

func TestTrackPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	tr, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "agent-1", PID: os.Getpid()}))

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.Get("agent-1")
	require.NoError(t, err)
	require.Equal(t, "agent-1", got.Name)
}

func TestUntrackRemovesRecord(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "agent-1", PID: os.Getpid()}))
	require.NoError(t, tr.Untrack("agent-1"))

	_, err := tr.Get("agent-1")
	require.Error(t, err)
}

func TestCleanupDeadRemovesUnaliveProcesses(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "alive", PID: os.Getpid()}))
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "dead", PID: 999999}))

	removed, err := tr.CleanupDead()
	require.NoError(t, err)
	require.Equal(t, []string{"dead"}, removed)

	_, err = tr.Get("alive")
	require.NoError(t, err)
}

func TestRegistryStateRoundTrip(t *testing.T) {
	tr := newTestTracker(t)
	require.Nil(t, tr.RegistryState())

	require.NoError(t, tr.SetRegistryState(&model.RegistryState{URL: "http://localhost:8080", Host: "localhost", Port: 8080}))
	got := tr.RegistryState()
	require.NotNil(t, got)
	require.Equal(t, "http://localhost:8080", got.URL)
	require.False(t, got.LastUpdated.IsZero())

	require.NoError(t, tr.ClearRegistryState())
	require.Nil(t, tr.RegistryState())
}

func TestOpenDropsDeadRegistryRecordAndClearsRegistryState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	tr, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "registry", PID: 999999, ServiceType: model.ServiceRegistry}))
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "hello_world", PID: os.Getpid(), ServiceType: model.ServiceAgent}))
	require.NoError(t, tr.SetRegistryState(&model.RegistryState{URL: "http://localhost:8080"}))

	reopened, err := Open(path)
	require.NoError(t, err)

	_, err = reopened.Get("registry")
	require.Error(t, err)
	require.Nil(t, reopened.RegistryState())

	got, err := reopened.Get("hello_world")
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), got.PID)

	removed, err := reopened.CleanupDead()
	require.NoError(t, err)
	require.Empty(t, removed)
}

func TestDependencySatisfied(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Track(&model.ProcessRecord{Name: "db", PID: os.Getpid()}))

	missing, ok := tr.DependencySatisfied([]string{"db"})
	require.True(t, ok)
	require.Empty(t, missing)

	missing, ok = tr.DependencySatisfied([]string{"db", "cache"})
	require.False(t, ok)
	require.Equal(t, "cache", missing)
}
