// Command critq compiles typed criteria statements into SQL and MongoDB
// queries.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/critq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
