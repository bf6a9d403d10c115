package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/sgtlim/aether/internal/sse"
)

// maxErrorBodyBytes bounds how much of an upstream error body is read
// and surfaced to the caller.
const maxErrorBodyBytes = 64 * 1024

// Client streams chat completions from an OpenAI-compatible API.
// It keeps no state between calls.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL of the API, e.g. "https://api.openai.com/v1".
	BaseURL string
	// APIKey sent as a bearer token.
	APIKey string
	// HTTPClient is optional; http.DefaultClient is used when nil.
	// The transport's own timeout is the only wall-clock bound on a
	// streaming call.
	HTTPClient *http.Client
	// Logger is optional.
	Logger *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Stream issues the request with streaming forced on and yields deltas
// decoded from the provider's SSE stream. Malformed data lines are
// skipped: provider streams occasionally interleave keep-alive or
// comment lines, and resilience beats strictness here.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[Delta, error] {
	return func(yield func(Delta, error) bool) {
		req.Stream = true

		body, err := json.Marshal(req)
		if err != nil {
			yield(Delta{}, fmt.Errorf("marshal request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			yield(Delta{}, fmt.Errorf("build request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(Delta{}, &UnreachableError{Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			yield(Delta{}, &RejectedError{Status: resp.StatusCode, Body: string(errBody)})
			return
		}

		c.logger.Debug("upstream stream opened", "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))

		dec := sse.NewDecoder(resp.Body)
		for {
			payload, err := dec.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(Delta{}, &UnreachableError{Err: err})
				return
			}
			if payload == sse.Done {
				return
			}

			delta, ok := decodeChunk(payload)
			if !ok {
				continue
			}
			if delta.Content == "" && delta.FinishReason == "" && len(delta.ToolCalls) == 0 {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// chunk mirrors the provider's streaming response shape; only the fields
// the loop consumes are decoded.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []ToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// decodeChunk parses one data payload into a Delta. Returns ok=false for
// payloads that are not valid chunks.
func decodeChunk(payload string) (Delta, bool) {
	var ck chunk
	if err := json.Unmarshal([]byte(payload), &ck); err != nil {
		return Delta{}, false
	}
	if len(ck.Choices) == 0 {
		return Delta{}, false
	}

	choice := ck.Choices[0]
	return Delta{
		Content:      choice.Delta.Content,
		ToolCalls:    choice.Delta.ToolCalls,
		FinishReason: choice.FinishReason,
	}, true
}
