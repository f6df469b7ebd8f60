package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aria-assistant/aria-go/internal/assistant"
)

// NewLookupCmd constructs the `aria lookup` command, which resolves an
// exact verse reference with surrounding chapter context.
func NewLookupCmd() *cobra.Command {
	var translation string

	cmd := &cobra.Command{
		Use:   "lookup [reference]",
		Short: "Look up an exact verse reference",
		Long: `Look up a verse by exact reference (e.g. "John 3:16") and print it with
its surrounding chapter context and related commentary.

Examples:
  aria lookup "John 3:16"
  aria lookup --translation kjv "Psalms 23:1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			ix, cs, closeIndex, err := buildIndex(log)
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			defer closeIndex()

			if translation == "" {
				translation = defaultTranslation()
			}

			// Exact lookup never generates, so no model is wired.
			orch := assistant.NewOrchestrator(cs, ix, nil, nil, log)
			detail, err := orch.LookupReference(ctx, args[0], translation)
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}

			fmt.Printf("%s: %s\n", detail.Verse.Reference, detail.Verse.Text)
			if len(detail.Context) > 1 {
				fmt.Println("\nContext:")
				for _, v := range detail.Context {
					fmt.Printf("  %s: %s\n", v.Reference, v.Text)
				}
			}
			for _, c := range detail.Commentary {
				fmt.Printf("\nCommentary (%s, %s):\n  %s\n", c.FatherName, c.SourceTitle, c.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&translation, "translation", "t", "", "Scripture translation (default from config)")

	return cmd
}
