package kb

import (
	"context"
	"time"
)

// EmbeddingProvider defines the embedding capability of the hosted model service
type EmbeddingProvider interface {
	// GetEmbedding generates an embedding vector for the given input text
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CompletionProvider defines the text-generation capability of the hosted model service
type CompletionProvider interface {
	// Complete generates a completion for the given prompt
	Complete(ctx context.Context, prompt string) (string, error)
}

// VectorStore defines operations against per-tenant vector partitions
type VectorStore interface {
	// Search performs a nearest-neighbor query against the partition owned by
	// tenantID and returns chunks ordered by descending similarity
	Search(ctx context.Context, tenantID string, vector []float32, k int) ([]ScoredChunk, error)
	// Insert upserts a chunk record into the partition owned by tenantID
	Insert(ctx context.Context, tenantID string, chunk ChunkRecord) error
}

// BlobStore defines the object storage operations used by uploads and ingestion
type BlobStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	PresignedPutURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// ScoredChunk is a retrieved chunk with its similarity score in [0, 1]
type ScoredChunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// ChunkRecord is the stored form of a chunk
type ChunkRecord struct {
	ID        string
	Embedding []float32
	Text      string
	Metadata  map[string]string
}
