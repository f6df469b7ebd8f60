package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aria-assistant/aria-go/internal/embedder"
	"github.com/aria-assistant/aria-go/internal/index"
)

// NewIndexCmd constructs the `aria index` command, which embeds the corpus
// into the vector store ahead of time.
func NewIndexCmd() *cobra.Command {
	var translation string
	var commentary bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the knowledge index from the corpus",
		Long: `Embed the scripture corpus into the vector store so queries are served
without a cold build.

Indexing is idempotent: collections that already hold points are skipped.
Documents are embedded in batches with the configured embedding provider.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (omit for in-process index)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)
  CORPUS_DATA_DIR      Directory holding the corpus CSV files

Examples:
  aria index
  aria index --translation kjv --commentary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := embedder.ValidateForRetrieval(log); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			ix, _, closeIndex, err := buildIndex(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer closeIndex()

			if translation == "" {
				translation = defaultTranslation()
			}

			collections := []string{index.VerseCollection(translation)}
			if commentary {
				collections = append(collections, index.CommentaryCollection)
			}

			// Collections build concurrently; each job's completion and
			// error are observable.
			jobs := make([]*index.BuildJob, 0, len(collections))
			for _, coll := range collections {
				log.Info("indexing collection", slog.String("collection", coll))
				jobs = append(jobs, ix.BuildAsync(ctx, coll))
			}
			for _, job := range jobs {
				if err := job.Wait(ctx); err != nil {
					return fmt.Errorf("index: build %s: %w", job.Collection(), err)
				}
			}

			log.Info("index complete", slog.Int("collections", len(collections)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&translation, "translation", "t", "", "Scripture translation to index (default from config)")
	cmd.Flags().BoolVarP(&commentary, "commentary", "c", false, "Also index the commentary collection")

	return cmd
}
