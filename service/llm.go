package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prizzzz/leaseIQ/config"
	"github.com/prizzzz/leaseIQ/pkg/metrics"
)

// ChatMessage is one turn of an OpenAI compatible conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-independent completion request. Model comes from config.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// LLM is the completion capability the extraction and negotiation services depend on.
type LLM interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Stream(ctx context.Context, req ChatRequest, onDelta func(delta string) error) error
}

// LLMClient talks to an OpenAI compatible /chat/completions endpoint (OpenRouter, Groq).
type LLMClient struct {
	name       string
	provider   config.ProviderConfig
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func NewLLMClient(name string, provider config.ProviderConfig, timeout time.Duration, m *metrics.Metrics) *LLMClient {
	return &LLMClient{
		name:     name,
		provider: provider,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
	}
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete returns the first choice's message content.
func (c *LLMClient) Complete(ctx context.Context, req ChatRequest) (content string, err error) {
	defer func() { c.metrics.ObserveLLM(c.name+"_complete", err) }()

	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.name)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// Stream reads server-sent events and calls onDelta for every non-empty
// content delta until the provider sends [DONE] or closes the stream.
func (c *LLMClient) Stream(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (err error) {
	defer func() { c.metrics.ObserveLLM(c.name+"_stream", err) }()

	resp, err := c.post(ctx, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (c *LLMClient) post(ctx context.Context, req ChatRequest, stream bool) (*http.Response, error) {
	payload := completionRequest{
		Model:       c.provider.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.provider.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.provider.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusRequestEntityTooLarge || strings.Contains(string(b), "Request too large") {
		return nil, fmt.Errorf("%s: %w", c.name, ErrRequestTooLarge)
	}
	return nil, fmt.Errorf("%s error (status %d): %s", c.name, resp.StatusCode, string(b))
}

// IsRequestTooLarge reports whether err means the prompt must be shortened.
func IsRequestTooLarge(err error) bool {
	return errors.Is(err, ErrRequestTooLarge)
}
