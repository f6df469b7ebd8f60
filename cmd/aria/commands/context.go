package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

// NewContextCmd constructs the `aria context` command, which prints the
// assistant's working view of a user: session, recent turns, preferences,
// and recent system events.
func NewContextCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show a user's conversational context",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := buildMemoryService(ctx, slog.Default())
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			defer cleanup()

			snap, err := svc.Snapshot(ctx, user)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}

			fmt.Printf("Session %d (started %s, %d interactions, %d unlocks)\n",
				snap.Session.ID,
				snap.Session.StartedAt.Format(time.RFC3339),
				snap.Session.InteractionCount,
				snap.Session.UnlockCount,
			)

			if len(snap.Preferences) > 0 {
				fmt.Println("\nPreferences:")
				for k, v := range snap.Preferences {
					fmt.Printf("  %s = %s\n", k, v)
				}
			}

			if len(snap.RecentTurns) > 0 {
				fmt.Println("\nRecent turns (newest first):")
				for _, t := range snap.RecentTurns {
					fmt.Printf("  [%s] %s -> %s\n", t.Kind, t.Input, t.Output)
				}
			}

			events, err := svc.RecentEvents(ctx, user, 10)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			if len(events) > 0 {
				fmt.Println("\nRecent events (newest first):")
				for _, ev := range events {
					fmt.Printf("  [%s] %s %s\n", ev.CreatedAt.Format(time.RFC3339), ev.Kind, ev.Detail)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultUser(), "User to inspect")

	return cmd
}
