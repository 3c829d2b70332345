// Command lodestar indexes markdown documentation and serves hybrid
// search over it, both as a CLI and as an MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/lodestar-dev/lodestar/cmd/lodestar/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
