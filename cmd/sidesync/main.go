// Command sidesync manages an embedded object store with a field-level oplog.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sidesync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
