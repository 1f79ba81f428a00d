package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"cloudkb/src/core/kb"
)

// PostgreSQL error codes that separate configuration failures from outages.
const (
	codeUndefinedTable   = "42P01"
	codeUndefinedColumn  = "42703"
	codeDatatypeMismatch = "42804"
)

// Store issues parameterized nearest-neighbor queries and upserts against
// per-tenant pgvector tables of the form kb_vectors_{tenant}.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore connects a pool and fixes the embedding dimension for all
// partitions it will touch.
func NewStore(ctx context.Context, connString string, dims int) (*Store, error) {
	if dims <= 0 {
		dims = 1536
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{pool: pool, dims: dims}, nil
}

// NewStoreWithPool wraps an existing pool, mainly for tests
func NewStoreWithPool(pool *pgxpool.Pool, dims int) *Store {
	return &Store{pool: pool, dims: dims}
}

// Dimensions returns the configured embedding dimension
func (s *Store) Dimensions() int {
	return s.dims
}

// EnsurePartition creates the tenant's vector table and cosine index if they
// do not exist. Operator tooling only; request paths never create schema.
func (s *Store) EnsurePartition(ctx context.Context, tenantID string) error {
	name, err := partitionName(tenantID)
	if err != nil {
		return err
	}
	table := pgx.Identifier{name}.Sanitize()
	index := pgx.Identifier{name + "_embedding_idx"}.Sanitize()

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d),
			chunk_text TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, s.dims)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, index, table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", name, err)
	}

	return nil
}

// Search runs a cosine nearest-neighbor query scoped to the tenant's
// partition. Results come back ordered by descending similarity with ties
// broken by ascending chunk ID.
func (s *Store) Search(ctx context.Context, tenantID string, vector []float32, k int) ([]kb.ScoredChunk, error) {
	table, err := partitionTable(tenantID)
	if err != nil {
		return nil, err
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: got %d, partition expects %d", kb.ErrDimensionMismatch, len(vector), s.dims)
	}
	if k <= 0 {
		k = 5
	}

	query := fmt.Sprintf(`
		SELECT id, chunk_text, metadata, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`, table)

	rows, err := s.pool.Query(ctx, query, pgv.NewVector(vector), k)
	if err != nil {
		return nil, classify(err, table)
	}
	defer rows.Close()

	var chunks []kb.ScoredChunk
	for rows.Next() {
		var (
			chunk        kb.ScoredChunk
			metadataJSON []byte
			distance     float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.Text, &metadataJSON, &distance); err != nil {
			return nil, classify(err, table)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
				chunk.Metadata = map[string]string{}
			}
		}
		chunk.Score = toSimilarity(distance)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, table)
	}

	return chunks, nil
}

// Insert upserts one chunk record into the tenant's partition
func (s *Store) Insert(ctx context.Context, tenantID string, chunk kb.ChunkRecord) error {
	table, err := partitionTable(tenantID)
	if err != nil {
		return err
	}
	if len(chunk.Embedding) != s.dims {
		return fmt.Errorf("%w: got %d, partition expects %d", kb.ErrDimensionMismatch, len(chunk.Embedding), s.dims)
	}

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk metadata: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, chunk_text, metadata, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			chunk_text = EXCLUDED.chunk_text,
			metadata = EXCLUDED.metadata`, table)

	if _, err := s.pool.Exec(ctx, stmt, chunk.ID, pgv.NewVector(chunk.Embedding), chunk.Text, metadataJSON); err != nil {
		return classify(err, table)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// toSimilarity converts cosine distance to a similarity score in [0, 1]
func toSimilarity(distance float64) float32 {
	similarity := 1 - distance
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return float32(similarity)
}

// classify maps driver errors onto the store's error kinds. The raw error is
// wrapped for server-side logs; callers surface only the kind.
func classify(err error, table string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable:
			return fmt.Errorf("%w: partition %s does not exist", kb.ErrTenantNotConfigured, table)
		case codeUndefinedColumn, codeDatatypeMismatch:
			return fmt.Errorf("%w: partition %s: %v", kb.ErrSchemaMismatch, table, err)
		}
	}
	return fmt.Errorf("%w: %v", kb.ErrStoreUnavailable, err)
}
