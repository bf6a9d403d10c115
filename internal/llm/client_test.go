package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, s Streamer, req Request) ([]Delta, error) {
	t.Helper()

	var deltas []Delta
	for d, err := range s.Stream(context.Background(), req) {
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("request sent without stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{BaseURL: baseURL, APIKey: "test-key"})
}

func TestClient_StreamContent(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)

	deltas, err := collect(t, newTestClient(srv.URL), Request{Model: "gpt-4o", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 3: %+v", len(deltas), deltas)
	}
	if got := deltas[0].Content + deltas[1].Content; got != "Hello" {
		t.Errorf("content = %q, want %q", got, "Hello")
	}
	if deltas[2].FinishReason != "stop" {
		t.Errorf("finish reason = %q, want %q", deltas[2].FinishReason, "stop")
	}
}

func TestClient_StreamToolCallFragments(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"calculate","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"expression\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"2+2\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	deltas, err := collect(t, newTestClient(srv.URL), Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if len(deltas) != 4 {
		t.Fatalf("got %d deltas, want 4", len(deltas))
	}
	first := deltas[0].ToolCalls
	if len(first) != 1 || first[0].ID != "call_1" || first[0].Function.Name != "calculate" {
		t.Errorf("first fragment = %+v", first)
	}
	if deltas[1].ToolCalls[0].ID != "" {
		t.Errorf("second fragment carried id %q, want empty", deltas[1].ToolCalls[0].ID)
	}
	if deltas[3].FinishReason != FinishToolCalls {
		t.Errorf("finish reason = %q, want %q", deltas[3].FinishReason, FinishToolCalls)
	}
}

func TestClient_SkipsMalformedFrames(t *testing.T) {
	srv := sseServer(t,
		`{not json`,
		`{"unrelated":true}`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
	)

	deltas, err := collect(t, newTestClient(srv.URL), Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(deltas) != 1 || deltas[0].Content != "ok" {
		t.Errorf("deltas = %+v, want single content delta", deltas)
	}
}

func TestClient_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid model"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	_, err := collect(t, newTestClient(srv.URL), Request{Model: "gpt-4o"})

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want *RejectedError", err)
	}
	if rejected.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rejected.Status, http.StatusUnauthorized)
	}
	if !strings.Contains(rejected.Body, "invalid model") {
		t.Errorf("body = %q, want upstream message preserved", rejected.Body)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := collect(t, newTestClient(srv.URL), Request{Model: "gpt-4o"})

	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("error = %v, want *UnreachableError", err)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	srv := sseServer(t, `{"choices":[{"delta":{"content":"x"}}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	var gotErr error
	for _, err := range c.Stream(ctx, Request{Model: "gpt-4o"}) {
		if err != nil {
			gotErr = err
			break
		}
	}
	if gotErr == nil {
		t.Fatal("Stream() with cancelled context succeeded, want error")
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", gotErr)
	}
}
