// Package commands defines all Cobra CLI commands for the aria binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/aria-assistant/aria-go/internal/audit"
	"github.com/aria-assistant/aria-go/internal/config"
	"github.com/aria-assistant/aria-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aria",
		Short: "ARIA — a voice assistant with conversational memory and scripture knowledge",
		Long: `ARIA is a local-first assistant with two long-lived faculties:

Conversational memory remembers sessions, recent exchanges, preferences,
and learned interaction patterns per user, backed by SQLite with an
optional Redis recency cache.

Knowledge retrieval answers scripture questions over an embedded corpus
using semantic search (Qdrant or an in-process index) and an LLM.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.aria/config.yaml).
See 'aria --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.aria/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewLookupCmd(),
		NewTopicCmd(),
		NewDailyCmd(),
		NewIndexCmd(),
		NewContextCmd(),
		NewUnlockCmd(),
		NewVersionCmd(),
	)

	return root
}
