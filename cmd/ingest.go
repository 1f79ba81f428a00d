package cmd

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cloudkb/src/core/kb"
	"cloudkb/src/infrastructure/integrations/ollama"
	"cloudkb/src/log"
	"cloudkb/src/storage/pgvector"
)

var (
	ingestTenant string
	ingestFile   string
	ingestKey    string
)

// ingestCmd ingests a local document synchronously, bypassing the job queue.
// Operator tooling for seeding and debugging tenant knowledge bases.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a local document into a tenant's knowledge base",
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant slug (required)")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to the document (required)")
	ingestCmd.Flags().StringVar(&ingestKey, "key", "", "document key to record as source (defaults to the file name)")
	ingestCmd.MarkFlagRequired("tenant")
	ingestCmd.MarkFlagRequired("file")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := log.Setup(viper.GetBool("log.production")); err != nil {
		return err
	}

	content, err := os.ReadFile(ingestFile)
	if err != nil {
		return err
	}
	if ingestKey == "" {
		ingestKey = filepath.Base(ingestFile)
	}

	ctx := context.Background()

	store, err := pgvector.NewStore(ctx, postgresDSN(), viper.GetInt("kb.embedding_dimensions"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsurePartition(ctx, ingestTenant); err != nil {
		return err
	}

	ollamaClient := ollama.NewClient(
		viper.GetString("ollama.url"),
		&http.Client{},
		viper.GetString("ollama.embedding_model"),
		viper.GetString("ollama.completion_model"),
	)

	ingestor := kb.NewIngestor(tenantRegistry(), ollamaClient, store, newChunker(), viper.GetInt("kb.ingest_concurrency"))

	var (
		barOnce sync.Once
		bar     *progressbar.ProgressBar
	)
	ingestor.OnChunkDone = func(processed, failed, total int) {
		barOnce.Do(func() {
			bar = progressbar.Default(int64(total), "ingesting chunks")
		})
		bar.Add(1)
	}

	summary, err := ingestor.Ingest(ctx, ingestTenant, ingestKey, string(content))
	if err != nil {
		return err
	}

	log.Info("ingestion finished",
		"tenant", ingestTenant,
		"document", ingestKey,
		"chunks_processed", summary.ChunksProcessed,
		"chunks_failed", summary.ChunksFailed,
		"truncated", summary.Truncated,
	)
	return nil
}
