//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setCommandProcessGroup puts the child in its own group so Terminate can
// take down anything it spawned.
func setCommandProcessGroup(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killCommandProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
