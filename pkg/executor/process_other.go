//go:build !unix

package executor

import "os/exec"

// configureProcessGroup is a no-op where process groups are unavailable;
// cancellation kills only the interpreter.
func configureProcessGroup(cmd *exec.Cmd) {}
