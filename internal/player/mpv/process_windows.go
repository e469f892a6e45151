//go:build windows

package mpv

import (
	"os/exec"
	"syscall"
)

// detachProcess puts mpv in its own process group so Ctrl+C in the terminal
// view does not reach the player window.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
