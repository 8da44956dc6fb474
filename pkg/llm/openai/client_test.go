package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/recap/pkg/llm"
)

var _ llm.Provider = (*Client)(nil)

func newTestClient(baseURL string) *Client {
	return New(&llm.Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		MaxTokens:      2000,
		Temperature:    0.3,
	})
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		resp := chatResponse{
			Choices: []choice{{Message: responseMessage{Role: "assistant", Content: "a summary"}}},
			Usage:   responseUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Complete(context.Background(), llm.Request{
		System:   "You summarize conversations.",
		Prompt:   "Summarize this.",
		JSONOnly: true,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "a summary" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 || resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}

	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("unexpected model %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected message roles: %s, %s", gotReq.Messages[0].Role, gotReq.Messages[1].Role)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", gotReq.ResponseFormat)
	}
	if gotReq.MaxTokens != 2000 {
		t.Errorf("expected config max_tokens 2000, got %d", gotReq.MaxTokens)
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0.3 {
		t.Errorf("expected config temperature 0.3, got %v", gotReq.Temperature)
	}
}

func TestCompleteNoResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil {
			t.Errorf("expected no response format, got %+v", req.ResponseFormat)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []choice{{Message: responseMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "hello"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), llm.Request{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), llm.Request{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestEmbedSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("unexpected embedding model %q", req.Model)
		}
		if req.Input != "deploy discussion" {
			t.Errorf("unexpected input %q", req.Input)
		}
		w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	vec, err := client.Embed(context.Background(), "deploy discussion")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestEmbedDisabled(t *testing.T) {
	client := New(&llm.Config{
		BaseURL: "http://unused",
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	})
	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, llm.ErrNoEmbeddings) {
		t.Errorf("expected ErrNoEmbeddings, got %v", err)
	}
}
