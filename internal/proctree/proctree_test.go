package proctree

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDescendantsOfUnknownPidReturnsEmpty(t *testing.T) {
	descendants, err := Descendants(999999)
	require.NoError(t, err)
	require.Empty(t, descendants)
}

func TestAliveReflectsCurrentProcess(t *testing.T) {
	require.True(t, alive(os.Getpid()))
	require.False(t, alive(999999))
}

func TestFindOrphanedWithNoMeshDescendantsIsEmpty(t *testing.T) {
	// The test process itself has spawned nothing, and any children it
	// might have won't match a mesh process signature, so nothing should
	// be reported.
	orphaned := FindOrphaned(map[int]struct{}{})
	require.Empty(t, orphaned)
}

func TestTerminateOfAlreadyDeadPidIsNoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := Terminate(ctx, 999999)
	require.NoError(t, err)
}
