package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloudkb/src/infrastructure/integrations/ollama"
)

func TestGetEmbedding(t *testing.T) {
	var gotReq ollama.EmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(ollama.EmbeddingResponse{
			Embedding: []float64{0.25, -0.5, 1.0},
		})
	}))
	defer srv.Close()

	client := ollama.NewClient(srv.URL, srv.Client(), "nomic-embed-text", "llama3")

	embedding, err := client.GetEmbedding(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{0.25, -0.5, 1.0}
	if len(embedding) != len(want) {
		t.Fatalf("got %d values, want %d", len(embedding), len(want))
	}
	for i := range want {
		if embedding[i] != want[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, embedding[i], want[i])
		}
	}

	if gotReq.Model != "nomic-embed-text" || gotReq.Prompt != "hello world" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestComplete(t *testing.T) {
	var gotReq ollama.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(ollama.GenerateResponse{
			Model:    gotReq.Model,
			Response: "the answer",
			Done:     true,
		})
	}))
	defer srv.Close()

	client := ollama.NewClient(srv.URL, srv.Client(), "nomic-embed-text", "llama3")

	answer, err := client.Complete(context.Background(), "a prompt")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "the answer" {
		t.Errorf("answer = %q", answer)
	}
	if gotReq.Model != "llama3" || gotReq.Prompt != "a prompt" {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Stream {
		t.Error("Stream = true, completions must not stream")
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := ollama.NewClient(srv.URL, srv.Client(), "", "")

	if _, err := client.GetEmbedding(context.Background(), "text"); err == nil {
		t.Error("expected error on 500 response")
	}
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := ollama.NewClient(srv.URL, srv.Client(), "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetEmbedding(ctx, "text"); err == nil {
		t.Error("expected error for a canceled context")
	}
}
