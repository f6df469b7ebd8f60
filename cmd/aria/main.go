// Command aria is the entry point for the ARIA assistant.
// It provides a CLI (via Cobra) over the assistant's conversational memory
// and scripture knowledge retrieval.
package main

import (
	"fmt"
	"os"

	"github.com/aria-assistant/aria-go/cmd/aria/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
