//go:build windows

package proctree

import (
	"fmt"
	"os/exec"
	"syscall"
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

// configureProcAttr puts cmd in a new process group, the closest Windows
// equivalent to a POSIX process-group leader.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// terminateGroup has no graceful-signal equivalent on Windows, so it goes
// straight to TerminateProcess; the caller's grace period is a no-op here.
func terminateGroup(pid int) error {
	return killGroup(pid)
}

// killGroup calls TerminateProcess on pid itself. Its descendants are not
// terminated on Windows.
func killGroup(pid int) error {
	handle, _, err := procOpenProcess.Call(
		uintptr(processTerminate|processQueryInformation),
		uintptr(0),
		uintptr(pid),
	)
	if handle == 0 {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer procCloseHandle.Call(handle)

	success, _, err := procTerminateProcess.Call(handle, uintptr(1))
	if success == 0 {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
