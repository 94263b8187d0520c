//go:build !windows

package proctree

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr puts cmd in a new process group with itself as leader,
// so terminateGroup/killGroup can later signal the whole group at once.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func killGroup(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

// signalGroup signals the process group (negative pid), falling back to
// signaling the individual pid if the group signal fails, e.g. because the
// process was never made a group leader.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		if err2 := syscall.Kill(pid, sig); err2 != nil {
			return fmt.Errorf("signal group -%d: %w (and signal pid %d: %v)", pid, err, pid, err2)
		}
	}
	return nil
}
