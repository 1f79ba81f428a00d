package kb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloudkb/src/log"
)

// NoContextAnswer is returned when retrieval produced nothing usable. It is a
// successful response, not an error.
const NoContextAnswer = "I don't know. I couldn't find any relevant information in the knowledge base."

const retryBackoff = 200 * time.Millisecond

// Answer is the synthesized response for a query
type Answer struct {
	Answer           string    `json:"answer"`
	SourcesCount     int       `json:"sources_count"`
	ConfidenceScores []float32 `json:"confidence_scores"`
	// Degraded marks answers produced without the completion model, so
	// callers can tell fallback output from synthesized output.
	Degraded bool `json:"degraded,omitempty"`
}

// Synthesize builds a grounding prompt from the ranked chunks and the
// sanitized query and invokes the completion model. With no chunks the model
// is never called. A completion failure after one retry degrades to the raw
// context instead of failing the query, since retrieval already succeeded.
func Synthesize(ctx context.Context, sanitizedQuery string, ranked []ScoredChunk, completer CompletionProvider) Answer {
	if len(ranked) == 0 {
		return Answer{
			Answer:           NoContextAnswer,
			SourcesCount:     0,
			ConfidenceScores: []float32{},
		}
	}

	scores := make([]float32, len(ranked))
	texts := make([]string, len(ranked))
	for i, c := range ranked {
		scores[i] = c.Score
		texts[i] = c.Text
	}
	contextBlock := strings.Join(texts, "\n\n")

	prompt := buildGroundingPrompt(contextBlock, sanitizedQuery)

	answer, err := completeWithRetry(ctx, completer, prompt)
	if err != nil {
		log.Error(err, "completion failed after retry, degrading to retrieved context")
		return Answer{
			Answer:           contextBlock,
			SourcesCount:     len(ranked),
			ConfidenceScores: scores,
			Degraded:         true,
		}
	}

	return Answer{
		Answer:           answer,
		SourcesCount:     len(ranked),
		ConfidenceScores: scores,
	}
}

func buildGroundingPrompt(contextBlock, sanitizedQuery string) string {
	return fmt.Sprintf(`Based on the following information from the knowledge base, please answer the user's question. If the information doesn't contain a clear answer, respond with "I don't know."

Context from knowledge base:
%s

User question: %s

Please provide a helpful and accurate answer based only on the provided context. If you cannot answer based on the context, say "I don't know.":`,
		contextBlock, sanitizedQuery)
}

func completeWithRetry(ctx context.Context, completer CompletionProvider, prompt string) (string, error) {
	answer, err := completer.Complete(ctx, prompt)
	if err == nil {
		return answer, nil
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(retryBackoff):
	}

	return completer.Complete(ctx, prompt)
}
