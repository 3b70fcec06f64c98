// Command pyexec runs the GPU Python code execution server and its
// companion tools.
package main

import (
	"fmt"
	"os"

	"github.com/narrated/pyexec/cmd/pyexec/commands"
)

// Set by the build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
