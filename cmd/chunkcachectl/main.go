// Command chunkcachectl drives a chunk cache against a synthetic backing
// object for manual inspection and demos.
package main

import (
	"fmt"
	"os"

	"github.com/dittofs/chunkcache/cmd/chunkcachectl/commands"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.Version = version
	commands.Commit = commit

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
