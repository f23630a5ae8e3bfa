// Command tierfold compiles function sources, drives the tiering engine and
// inspects the compilation log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tierfold/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
