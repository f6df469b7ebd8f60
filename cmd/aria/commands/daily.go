package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewDailyCmd constructs the `aria daily` command, which prints the verse
// of the day with a short generated reflection.
func NewDailyCmd() *cobra.Command {
	var translation string

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Print the daily verse and reflection",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := buildService(ctx, slog.Default())
			if err != nil {
				return fmt.Errorf("daily: %w", err)
			}
			defer cleanup()

			daily := svc.DailyVerse(ctx, translation)

			fmt.Printf("Today's theme: %s\n\n", daily.Topic)
			fmt.Printf("%s: %s\n\n", daily.Verse.Reference, daily.Verse.Text)
			fmt.Println(daily.Reflection)
			return nil
		},
	}

	cmd.Flags().StringVarP(&translation, "translation", "t", "", "Scripture translation (default from config)")

	return cmd
}
