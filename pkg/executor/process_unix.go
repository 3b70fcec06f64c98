//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the interpreter in its own process group and
// makes context cancellation kill the whole group.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
