package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewUnlockCmd constructs the `aria unlock` command, which records a device
// unlock against the user's current session.
func NewUnlockCmd() *cobra.Command {
	var user string
	var detail string

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Record a device unlock event",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := buildMemoryService(ctx, slog.Default())
			if err != nil {
				return fmt.Errorf("unlock: %w", err)
			}
			defer cleanup()

			if err := svc.RecordUnlock(ctx, user, detail); err != nil {
				return fmt.Errorf("unlock: %w", err)
			}
			fmt.Println("unlock recorded")
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultUser(), "User the unlock belongs to")
	cmd.Flags().StringVarP(&detail, "detail", "d", "", "Optional detail, e.g. the unlock method")

	return cmd
}
