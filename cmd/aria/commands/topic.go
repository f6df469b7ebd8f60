package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewTopicCmd constructs the `aria topic` command, which retrieves verses
// and commentary for a topic and synthesizes a study summary.
func NewTopicCmd() *cobra.Command {
	var translation string
	var limit int

	cmd := &cobra.Command{
		Use:   "topic [topic]",
		Short: "Explore a biblical topic",
		Long: `Retrieve the verses and commentary most relevant to a free-text topic and
generate a study summary over them.

Examples:
  aria topic forgiveness
  aria topic --limit 20 "the kingdom of heaven"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := buildService(ctx, slog.Default())
			if err != nil {
				return fmt.Errorf("topic: %w", err)
			}
			defer cleanup()

			res := svc.ExploreTopic(ctx, args[0], translation, limit)

			fmt.Println(res.Summary)
			if len(res.Verses) > 0 {
				fmt.Println("\nVerses:")
				for _, v := range res.Verses {
					fmt.Printf("  %s: %s\n", v.Reference, v.Text)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&translation, "translation", "t", "", "Scripture translation (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum verses to retrieve (default 10)")

	return cmd
}
