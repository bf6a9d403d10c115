// Package client consumes the chat service's SSE stream and maintains
// the client-side conversation state.
//
// Incoming frames are JSON payloads of three shapes: a bare string
// (content or tool notice), {"sources": [...]}, and {"error": "..."}.
// The [DONE] sentinel terminates the stream. Unknown or malformed
// frames are skipped.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sgtlim/aether/internal/sse"
	"github.com/sgtlim/aether/internal/tools"
)

// Events receives stream callbacks. Nil callbacks are skipped.
type Events struct {
	// OnChunk receives each content or notice token.
	OnChunk func(text string)
	// OnSources receives web results backing the answer.
	OnSources func(sources []tools.Source)
	// OnError receives an in-stream error frame. The stream still ends
	// with [DONE] afterwards.
	OnError func(message string)
	// OnDone fires once when the sentinel arrives.
	OnDone func()
}

// Message mirrors the chat request wire shape.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Request is the POST /api/v1/chat body.
type Request struct {
	Messages     []Message `json:"messages"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Tools        *bool     `json:"tools,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	BrowserID    string    `json:"browserId,omitempty"`
}

// Client talks to the chat service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the service at baseURL, e.g.
// "http://localhost:8080". httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Stream sends one chat turn and dispatches frames to ev until the
// sentinel, stream end, or context cancellation. Cancellation is a
// deliberate abort, not an error.
func (c *Client) Stream(ctx context.Context, req Request, ev Events) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat API returned %d: %s", resp.StatusCode, errBody)
	}

	dec := sse.NewDecoder(resp.Body)
	for {
		payload, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if payload == sse.Done {
			if ev.OnDone != nil {
				ev.OnDone()
			}
			return nil
		}

		dispatch(payload, ev)
	}
}

// dispatch routes one frame payload to the matching callback.
func dispatch(payload string, ev Events) {
	var text string
	if err := json.Unmarshal([]byte(payload), &text); err == nil {
		if ev.OnChunk != nil {
			ev.OnChunk(text)
		}
		return
	}

	var frame struct {
		Error   *string        `json:"error"`
		Sources []tools.Source `json:"sources"`
	}
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return
	}
	switch {
	case frame.Error != nil:
		if ev.OnError != nil {
			ev.OnError(*frame.Error)
		}
	case frame.Sources != nil:
		if ev.OnSources != nil {
			ev.OnSources(frame.Sources)
		}
	}
}
