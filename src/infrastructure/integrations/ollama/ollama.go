package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	DefaultURL = "http://localhost:11434/api"

	DefaultEmbeddingModel  = "nomic-embed-text"
	DefaultCompletionModel = "llama3"
)

// EmbeddingRequest represents the request structure for embeddings
type EmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbeddingResponse represents the response structure from embeddings
type EmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// GenerateRequest represents the request structure for model generation
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse represents the response structure from generation
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client talks to the hosted model service over its HTTP API. It exposes the
// two capabilities the pipeline needs: embed and complete.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	embeddingModel  string
	completionModel string
}

// NewClient creates a model service client. Timeouts come from the caller's
// context, not the http.Client.
func NewClient(baseURL string, c *http.Client, embeddingModel, completionModel string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = &http.Client{}
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if completionModel == "" {
		completionModel = DefaultCompletionModel
	}

	return &Client{
		httpClient:      c,
		baseURL:         baseURL,
		embeddingModel:  embeddingModel,
		completionModel: completionModel,
	}
}

// GetEmbedding generates an embedding vector for the given text
func (c *Client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	reqBody := EmbeddingRequest{
		Model:  c.embeddingModel,
		Prompt: text,
	}

	var result EmbeddingResponse
	if err := c.post(ctx, "/embeddings", reqBody, &result); err != nil {
		return nil, err
	}

	// Convert float64 to float32
	embedding32 := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding32[i] = float32(v)
	}

	return embedding32, nil
}

// Complete performs model generation with the given prompt
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := GenerateRequest{
		Model:  c.completionModel,
		Prompt: prompt,
		Stream: false,
	}

	var result GenerateResponse
	if err := c.post(ctx, "/generate", reqBody, &result); err != nil {
		return "", err
	}

	return result.Response, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, result interface{}) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("model service returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}

	return nil
}
