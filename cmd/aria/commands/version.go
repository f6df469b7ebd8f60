package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aria-assistant/aria-go/internal/version"
)

// NewVersionCmd constructs the `aria version` subcommand.
// It prints the binary version, git commit, and build date injected at
// build time via -ldflags. Falls back to "dev"/"unknown" for local builds.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the aria version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aria %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.BuildDate)
		},
	}
}
