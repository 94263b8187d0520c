package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshctl/meshcore/internal/proctracker"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	tr, err := proctracker.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return New(tr)
}

func TestStartAgentTracksLongRunningProcess(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	rec, err := o.StartAgent(ctx, AgentSpec{Name: "sleeper", Command: []string{"sleep", "5"}})
	require.NoError(t, err)
	require.Equal(t, "sleeper", rec.Name)

	require.NoError(t, o.StopAgent(ctx, "sleeper"))
}

func TestStartAgentFailsWhenProcessExitsDuringSettle(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.StartAgent(context.Background(), AgentSpec{Name: "quitter", Command: []string{"false"}})
	require.Error(t, err)
}

func TestStartAgentFailsWhenDependencyMissing(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.StartAgent(context.Background(), AgentSpec{
		Name: "dependent", Command: []string{"sleep", "5"}, Dependencies: []string{"db"},
	})
	require.Error(t, err)
}

func TestStopAllTerminatesEveryTrackedProcess(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.StartAgent(ctx, AgentSpec{Name: "one", Command: []string{"sleep", "5"}})
	require.NoError(t, err)
	_, err = o.StartAgent(ctx, AgentSpec{Name: "two", Command: []string{"sleep", "5"}})
	require.NoError(t, err)

	require.NoError(t, o.StopAll(ctx))
	require.Empty(t, o.tracker.All())
}

func TestStartAgentWithLogDirCapturesOutput(t *testing.T) {
	o := newTestOrchestrator(t)
	logDir := t.TempDir()
	o.WithLogDir(logDir)

	_, err := o.StartAgent(context.Background(), AgentSpec{Name: "chatty", Command: []string{"sh", "-c", "echo hello; sleep 5"}})
	require.NoError(t, err)

	path := o.LogPath("chatty")
	require.Equal(t, filepath.Join(logDir, "chatty.log"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")

	require.NoError(t, o.StopAgent(context.Background(), "chatty"))
}

func TestRestartAgentWithRegistrationWaitTimesOutWithoutRegistration(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.StartAgent(ctx, AgentSpec{Name: "agent", Command: []string{"sleep", "5"}})
	require.NoError(t, err)

	never := func(ctx context.Context, name string) (bool, error) { return false, nil }
	_, err = o.RestartAgentWithRegistrationWait(ctx, AgentSpec{Name: "agent", Command: []string{"sleep", "5"}}, never, 300*time.Millisecond)
	require.Error(t, err)
}
