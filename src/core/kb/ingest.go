package kb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cloudkb/src/log"
)

// IngestSummary reports what happened to one document
type IngestSummary struct {
	ChunksProcessed int  `json:"chunks_processed"`
	ChunksFailed    int  `json:"chunks_failed"`
	Truncated       bool `json:"truncated,omitempty"`
}

// Ingestor chunks a document, embeds each chunk and inserts it into the
// tenant's vector partition. Chunks are processed by a bounded worker pool;
// one chunk failing never cancels its siblings.
type Ingestor struct {
	registry     *TenantRegistry
	embedder     EmbeddingProvider
	store        VectorStore
	chunker      *Chunker
	concurrency  int
	embedTimeout time.Duration

	// OnChunkDone, when set, is called after each chunk completes. Used by
	// the CLI to drive a progress bar.
	OnChunkDone func(processed, failed, total int)
}

func NewIngestor(registry *TenantRegistry, embedder EmbeddingProvider, store VectorStore, chunker *Chunker, concurrency int) *Ingestor {
	if concurrency <= 0 {
		concurrency = 4
	}
	if chunker == nil {
		chunker = NewChunker(0, 0, 0)
	}
	return &Ingestor{
		registry:     registry,
		embedder:     embedder,
		store:        store,
		chunker:      chunker,
		concurrency:  concurrency,
		embedTimeout: 5 * time.Second,
	}
}

// Ingest processes one document's raw text into the tenant's partition
func (ing *Ingestor) Ingest(ctx context.Context, tenantID, documentKey, text string) (*IngestSummary, error) {
	if err := ValidateIdentifiers(tenantID, ""); err != nil {
		return nil, err
	}
	if !ing.registry.IsKnown(tenantID) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotConfigured, tenantID)
	}

	chunks, truncated, err := ing.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document %s: %w", documentKey, err)
	}
	if truncated {
		log.Info("document exceeded chunk cap, truncating",
			"tenant", tenantID,
			"document", documentKey,
			"kept", len(chunks),
		)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
		failed    int
	)
	sem := make(chan struct{}, ing.concurrency)

	for i, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, chunk Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			err := ing.processChunk(ctx, tenantID, documentKey, chunk)

			mu.Lock()
			if err != nil {
				failed++
				log.Error(err, "chunk ingestion failed",
					"tenant", tenantID,
					"document", documentKey,
					"chunk_index", index,
				)
			} else {
				processed++
			}
			done, bad := processed, failed
			mu.Unlock()

			if ing.OnChunkDone != nil {
				ing.OnChunkDone(done, bad, len(chunks))
			}
		}(i, chunk)
	}
	wg.Wait()

	log.Info("document ingested",
		"tenant", tenantID,
		"document", documentKey,
		"chunks_processed", processed,
		"chunks_failed", failed,
	)

	return &IngestSummary{
		ChunksProcessed: processed,
		ChunksFailed:    failed,
		Truncated:       truncated,
	}, nil
}

func (ing *Ingestor) processChunk(ctx context.Context, tenantID, documentKey string, chunk Chunk) error {
	embedCtx, cancel := context.WithTimeout(ctx, ing.embedTimeout)
	defer cancel()

	embedding, err := ing.embedder.GetEmbedding(embedCtx, chunk.Text)
	if err != nil {
		return fmt.Errorf("failed to embed chunk: %w", err)
	}

	metadata := map[string]string{
		"source": documentKey,
		"tenant": tenantID,
	}
	if chunk.Section != "" {
		metadata["section"] = chunk.Section
	}

	record := ChunkRecord{
		ID:        uuid.New().String(),
		Embedding: embedding,
		Text:      chunk.Text,
		Metadata:  metadata,
	}
	if err := ing.store.Insert(ctx, tenantID, record); err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}
