// Command blockshot discovers block variants on an authoring host,
// generates visual regression tests for them and serves the on-demand test
// runner used by the in-page overlay.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/livetemplate/blockshot"
	"github.com/livetemplate/blockshot/cmd/blockshot/commands"
)

func main() {
	log.SetFlags(0)
	if err := commands.NewRootCommand(blockshot.Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
