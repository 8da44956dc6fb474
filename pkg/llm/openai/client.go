// Package openai implements llm.Provider against OpenAI-compatible APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/recap/pkg/llm"
)

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	retry      *llm.RetryPolicy
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
func New(config *llm.Config) *Client {
	return &Client{
		config: config,
		retry:  llm.DefaultRetryPolicy(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []requestMessage `json:"messages"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Temperature    *float32         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type requestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the OpenAI chat completions response body.
type chatResponse struct {
	Choices []choice      `json:"choices"`
	Usage   responseUsage `json:"usage"`
}

type choice struct {
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// embeddingRequest is the OpenAI embeddings request body.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Complete sends a chat completion request and returns the full response.
// Transient failures are retried with backoff before the error surfaces.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var messages []requestMessage
	if req.System != "" {
		messages = append(messages, requestMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, requestMessage{Role: "user", Content: req.Prompt})

	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		reqBody.MaxTokens = req.MaxTokens
	} else if c.config.MaxTokens > 0 {
		reqBody.MaxTokens = c.config.MaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.config.Temperature
	}
	if temp != 0 {
		reqBody.Temperature = &temp
	}
	if req.JSONOnly {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out *llm.Response
	err := c.retry.Execute(ctx, func() error {
		var chatResp chatResponse
		if err := c.post(ctx, "/chat/completions", reqBody, &chatResp); err != nil {
			return err
		}
		if len(chatResp.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		out = &llm.Response{
			Content: chatResp.Choices[0].Message.Content,
			Usage: llm.Usage{
				InputTokens:  chatResp.Usage.PromptTokens,
				OutputTokens: chatResp.Usage.CompletionTokens,
				TotalTokens:  chatResp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Embed generates an embedding for the text using the configured embedding
// model. An empty embedding model disables the capability.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.config.EmbeddingModel == "" {
		return nil, llm.ErrNoEmbeddings
	}

	reqBody := embeddingRequest{
		Model: c.config.EmbeddingModel,
		Input: text,
	}

	var vector []float32
	err := c.retry.Execute(ctx, func() error {
		var embResp embeddingResponse
		if err := c.post(ctx, "/embeddings", reqBody, &embResp); err != nil {
			return err
		}
		if len(embResp.Data) == 0 {
			return fmt.Errorf("no embedding in response")
		}
		vector = embResp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
