//go:build unix

package simphttpd

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolateProcess puts the child in its own process group so a kill reaches everything it started.
func isolateProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcess(cmd)
	}
}

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}
