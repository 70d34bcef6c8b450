//go:build !unix

package simphttpd

import "os/exec"

func isolateProcess(cmd *exec.Cmd) {} // no process groups here, WaitDelay closes the pipes

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
