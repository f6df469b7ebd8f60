package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aria-assistant/aria-go/internal/assistant"
)

// NewAskCmd constructs the `aria ask` command, which answers a single
// scripture question grounded in retrieved verses and commentary.
func NewAskCmd() *cobra.Command {
	var user string
	var translation string
	var commentary bool
	var history int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a scripture question",
		Long: `Ask a natural language question about scripture, or give an exact verse
reference for a direct lookup.

Answers are grounded in semantically retrieved verses (and commentary with
--commentary) and generated by the configured model provider. The exchange
is recorded in the user's conversational memory and recent turns feed the
prompt as context.

Examples:
  aria ask "what does the Bible say about forgiveness?"
  aria ask "John 3:16"
  aria ask --commentary --user alice "why did God create light first?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, cleanup, err := buildService(ctx, slog.Default())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			ans, err := svc.Ask(ctx, user, args[0], assistant.AskOptions{
				Translation:       translation,
				IncludeCommentary: commentary,
				HistoryTurns:      history,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(ans.Text)
			if ans.Sources() > 0 {
				fmt.Println("\nSources:")
				for _, v := range ans.Verses {
					fmt.Printf("  %s (%.2f)\n", v.Reference, v.Score)
				}
				for _, c := range ans.Commentary {
					fmt.Printf("  %s, %s (%.2f)\n", c.FatherName, c.SourceTitle, c.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultUser(), "User the question is asked as")
	cmd.Flags().StringVarP(&translation, "translation", "t", "", "Scripture translation (default from config)")
	cmd.Flags().BoolVarP(&commentary, "commentary", "c", false, "Include commentary in retrieval")
	cmd.Flags().IntVar(&history, "history", 0, "Number of recent turns to include as context")

	return cmd
}
