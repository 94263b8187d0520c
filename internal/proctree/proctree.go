// Package proctree implements the Process Tree Controller (C8): spawning
// an agent subprocess in its own process group, discovering its live
// descendants, and terminating the whole tree when the agent is stopped.
// The OS-specific mechanics of configuring and killing a process group
// live in proctree_unix.go and proctree_windows.go.
package proctree

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/pkg/logging"
)

const component = "ProcessTree"

// meshProcessSignatures are substrings of a command line that mark a
// process as mesh-managed, mirroring the grounding source's
// _is_mcp_mesh_process indicator list.
var meshProcessSignatures = []string{
	"meshctl", "mcp_mesh", "mcp-mesh", "mcpmesh", "mesh-registry", "mesh-agent",
}

// gracePeriod is how long Terminate waits after SIGTERM before escalating
// to SIGKILL.
const gracePeriod = 5 * time.Second

// Spawn starts cmd as the root of a new process group/job object so its
// descendants can later be terminated as a unit, and returns once the
// process has been started (not once it exits).
func Spawn(cmd *exec.Cmd) error {
	configureProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.StartupFailure, component, cmd.Path, err)
	}
	return nil
}

// Descendants returns the pids of every live descendant of pid (children,
// grandchildren, ...), not including pid itself.
func Descendants(pid int) ([]int, error) {
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return nil, nil // process already gone; no descendants to report
	}
	var out []int
	if err := collectDescendants(proc, &out); err != nil {
		return nil, errs.Wrap(errs.StoreFailure, component, strconv.Itoa(pid), err)
	}
	return out, nil
}

func collectDescendants(proc *gopsprocess.Process, out *[]int) error {
	children, err := proc.Children()
	if err != nil {
		// gopsutil reports "no children" as an error on some platforms.
		return nil
	}
	for _, child := range children {
		*out = append(*out, int(child.Pid))
		if err := collectDescendants(child, out); err != nil {
			return err
		}
	}
	return nil
}

// Terminate stops the process group rooted at pid: SIGTERM first, then
// SIGKILL if it hasn't exited within gracePeriod. ctx may shorten the wait.
func Terminate(ctx context.Context, pid int) error {
	if !alive(pid) {
		return nil
	}
	logging.Info(component, "terminating process group rooted at pid %d", pid)
	if err := terminateGroup(pid); err != nil {
		return errs.Wrap(errs.TerminationFailure, component, strconv.Itoa(pid), err)
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Cancelled, component, strconv.Itoa(pid), ctx.Err())
		default:
		}
		if !alive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if !alive(pid) {
		return nil
	}
	logging.Warn(component, "pid %d still alive after grace period, escalating to SIGKILL", pid)
	if err := killGroup(pid); err != nil {
		return errs.Wrap(errs.TerminationFailure, component, strconv.Itoa(pid), err)
	}
	return nil
}

func alive(pid int) bool {
	exists, err := gopsprocess.PidExists(int32(pid))
	return err == nil && exists
}

// FindOrphaned walks the current process's descendants and returns the
// ones not present in knownPIDs whose command line matches a mesh process
// signature (§4.8) -- a descendant the tracker never recorded, as opposed
// to an unrelated process that happens to share a parent.
func FindOrphaned(knownPIDs map[int]struct{}) []int {
	self, err := gopsprocess.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	children, err := self.Children()
	if err != nil {
		return nil
	}

	var out []int
	var walk func(*gopsprocess.Process)
	walk = func(proc *gopsprocess.Process) {
		if _, known := knownPIDs[int(proc.Pid)]; !known && isMeshProcess(proc) {
			out = append(out, int(proc.Pid))
		}
		grandchildren, err := proc.Children()
		if err != nil {
			return
		}
		for _, gc := range grandchildren {
			walk(gc)
		}
	}
	for _, child := range children {
		walk(child)
	}
	return out
}

func isMeshProcess(proc *gopsprocess.Process) bool {
	cmdline, err := proc.CmdlineSlice()
	if err != nil || len(cmdline) == 0 {
		return false
	}
	joined := strings.ToLower(strings.Join(cmdline, " "))
	for _, sig := range meshProcessSignatures {
		if strings.Contains(joined, sig) {
			return true
		}
	}
	return false
}

// CleanupOrphaned finds orphaned processes per FindOrphaned and terminates
// each one through Terminate, with the same gracePeriod as a regular stop,
// returning the pids it acted on.
func CleanupOrphaned(ctx context.Context, knownPIDs map[int]struct{}) []int {
	orphans := FindOrphaned(knownPIDs)
	for _, pid := range orphans {
		if err := Terminate(ctx, pid); err != nil {
			logging.Error(component, err, "failed to clean up orphaned pid %d", pid)
		}
	}
	return orphans
}
