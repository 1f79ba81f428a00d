package kb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudkb/src/log"
)

// QueryConfig carries the canonical retrieval constants. One threshold, one
// context window, applied consistently across every caller.
type QueryConfig struct {
	MinSimilarity   float32
	MaxContext      int
	SearchLimit     int
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	CompleteTimeout time.Duration
}

// DefaultQueryConfig returns the canonical retrieval configuration
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		MinSimilarity:   0.2,
		MaxContext:      3,
		SearchLimit:     5,
		EmbedTimeout:    5 * time.Second,
		SearchTimeout:   10 * time.Second,
		CompleteTimeout: 30 * time.Second,
	}
}

// QueryRequest is one tenant-scoped free-text query
type QueryRequest struct {
	TenantID   string
	CustomerID string
	Query      string
}

// QueryResult is the answer plus the ranked evidence it was grounded on
type QueryResult struct {
	Answer
	Results []ScoredChunk `json:"results,omitempty"`
}

// QueryService runs the retrieval and answer-synthesis pipeline:
// validate, isolate, embed, search, rank, synthesize.
type QueryService struct {
	registry  *TenantRegistry
	embedder  EmbeddingProvider
	store     VectorStore
	completer CompletionProvider
	cfg       QueryConfig
}

func NewQueryService(registry *TenantRegistry, embedder EmbeddingProvider, store VectorStore, completer CompletionProvider, cfg QueryConfig) *QueryService {
	if cfg.MaxContext <= 0 {
		cfg.MaxContext = 3
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}
	return &QueryService{
		registry:  registry,
		embedder:  embedder,
		store:     store,
		completer: completer,
		cfg:       cfg,
	}
}

// Query answers a free-text question from the tenant's knowledge base
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if err := ValidateIdentifiers(req.TenantID, req.CustomerID); err != nil {
		return nil, err
	}
	sanitized, err := SanitizeQuery(req.Query)
	if err != nil {
		return nil, err
	}
	if !s.registry.IsKnown(req.TenantID) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotConfigured, req.TenantID)
	}

	if verdict := CheckIsolation(req.TenantID, sanitized, s.registry.Known()); verdict.Blocked {
		log.Info("cross-tenant query blocked",
			"tenant", req.TenantID,
			"referenced", verdict.OtherTenant,
		)
		return &QueryResult{Answer: BlockedAnswer(req.TenantID)}, nil
	}

	vector, err := s.embedQuery(ctx, sanitized)
	if err != nil {
		return nil, err
	}

	chunks, err := s.searchPartition(ctx, req.TenantID, vector)
	if err != nil {
		return nil, err
	}

	ranked := Rank(chunks, s.cfg.MinSimilarity, s.cfg.MaxContext)

	completeCtx, cancel := context.WithTimeout(ctx, s.cfg.CompleteTimeout)
	defer cancel()
	answer := Synthesize(completeCtx, sanitized, ranked, s.completer)

	log.Debug("query answered",
		"tenant", req.TenantID,
		"customer", req.CustomerID,
		"sources", answer.SourcesCount,
		"degraded", answer.Degraded,
	)

	return &QueryResult{Answer: answer, Results: ranked}, nil
}

// embedQuery retries once with backoff; without an embedding the query path
// cannot proceed, so failure surfaces as an upstream outage.
func (s *QueryService) embedQuery(ctx context.Context, sanitized string) ([]float32, error) {
	vector, err := s.embedOnce(ctx, sanitized)
	if err == nil {
		return vector, nil
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, ctx.Err())
	case <-time.After(retryBackoff):
	}

	vector, err = s.embedOnce(ctx, sanitized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return vector, nil
}

func (s *QueryService) embedOnce(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()
	return s.embedder.GetEmbedding(embedCtx, text)
}

// searchPartition retries transient store failures once. Configuration-level
// failures (missing partition, dimension mismatch) are never retried.
func (s *QueryService) searchPartition(ctx context.Context, tenantID string, vector []float32) ([]ScoredChunk, error) {
	chunks, err := s.searchOnce(ctx, tenantID, vector)
	if err == nil || !errors.Is(err, ErrStoreUnavailable) {
		return chunks, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	case <-time.After(retryBackoff):
	}

	return s.searchOnce(ctx, tenantID, vector)
}

func (s *QueryService) searchOnce(ctx context.Context, tenantID string, vector []float32) ([]ScoredChunk, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()
	return s.store.Search(searchCtx, tenantID, vector, s.cfg.SearchLimit)
}
