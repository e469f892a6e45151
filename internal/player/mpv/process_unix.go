//go:build !windows

package mpv

import "os/exec"

func detachProcess(*exec.Cmd) {}
