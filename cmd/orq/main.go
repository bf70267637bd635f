// Command orq translates object queries into SQL and runs them.
package main

import (
	"os"

	"github.com/roach88/orq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
