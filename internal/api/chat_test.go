package api

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sgtlim/aether/internal/agent"
	"github.com/sgtlim/aether/internal/llm"
	"github.com/sgtlim/aether/internal/session"
	"github.com/sgtlim/aether/internal/testutil"
	"github.com/sgtlim/aether/internal/tools"
)

func testServer(t *testing.T, streamer llm.Streamer) *Server {
	t.Helper()

	ag := agent.New(agent.Config{
		Streamer:    streamer,
		Executor:    tools.NewExecutor(nil, nil),
		Definitions: tools.Definitions(),
	})

	srv, err := NewServer(ServerConfig{
		Agent:     ag,
		Model:     "gpt-4o",
		MaxTokens: 4096,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func contentStreamer(words ...string) *testutil.ScriptedStreamer {
	deltas := make([]llm.Delta, 0, len(words)+1)
	for _, w := range words {
		deltas = append(deltas, llm.Delta{Content: w})
	}
	deltas = append(deltas, llm.Delta{FinishReason: "stop"})
	return &testutil.ScriptedStreamer{Scripts: [][]llm.Delta{deltas}}
}

func messagesJSON(n int) string {
	msgs := make([]map[string]string, n)
	for i := range msgs {
		msgs[i] = map[string]string{"role": "user", "content": fmt.Sprintf("message %d", i)}
	}
	b, _ := json.Marshal(msgs)
	return string(b)
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"empty messages", `{"messages":[]}`, "messages_required"},
		{"missing messages", `{}`, "messages_required"},
		{"too many messages", `{"messages":` + messagesJSON(201) + `}`, "too_many_messages"},
		{"bad role", `{"messages":[{"role":"wizard","content":"hi"}]}`, "invalid_role"},
		{"model too long", `{"messages":[{"role":"user","content":"hi"}],"model":"` + strings.Repeat("m", 51) + `"}`, "model_too_long"},
		{"system prompt too long", `{"messages":[{"role":"user","content":"hi"}],"systemPrompt":"` + strings.Repeat("s", 10001) + `"}`, "system_prompt_too_long"},
		{"bad session id", `{"messages":[{"role":"user","content":"hi"}],"sessionId":"not-a-uuid"}`, "invalid_session_id"},
		{"not json", `{{{`, "invalid_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, contentStreamer("unused"))

			w := postChat(t, srv, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("response not JSON: %v", err)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q, want JSON error before any SSE", ct)
			}
		})
	}
}

func TestChat_BoundaryMessageCounts(t *testing.T) {
	for _, n := range []int{1, maxMessages} {
		srv := testServer(t, contentStreamer("ok"))

		w := postChat(t, srv, `{"messages":`+messagesJSON(n)+`}`)

		if w.Code != http.StatusOK {
			t.Errorf("%d messages: status = %d, want %d", n, w.Code, http.StatusOK)
		}
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	srv := testServer(t, contentStreamer("unused"))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/v1/chat status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestChat_StreamsSSE(t *testing.T) {
	srv := testServer(t, contentStreamer("Hello ", "world"))

	w := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	payloads := testutil.Payloads(t, w.Body.String())
	want := []string{`"Hello "`, `"world"`, "[DONE]"}
	if len(payloads) != len(want) {
		t.Fatalf("payloads = %v, want %v", payloads, want)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, payloads[i], want[i])
		}
	}
}

func TestChat_DefaultsApplied(t *testing.T) {
	streamer := contentStreamer("ok")
	srv := testServer(t, streamer)

	w := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	req := streamer.Requests()[0]
	if req.Model != "gpt-4o" {
		t.Errorf("model = %q, want server default", req.Model)
	}
	if req.MaxTokens != 4096 {
		t.Errorf("max tokens = %d, want 4096", req.MaxTokens)
	}
	if len(req.Tools) == 0 {
		t.Error("tools absent; omitted tools flag must default to enabled")
	}
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[0].Content != DefaultSystemPrompt {
		t.Errorf("first message = %+v, want default system prompt", req.Messages[0])
	}
}

func TestChat_ToolsDisabledAndCustomPrompt(t *testing.T) {
	streamer := contentStreamer("ok")
	srv := testServer(t, streamer)

	w := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}],"tools":false,"systemPrompt":"Be terse.","model":"gpt-4o-mini"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	req := streamer.Requests()[0]
	if len(req.Tools) != 0 {
		t.Errorf("tools sent despite tools:false")
	}
	if req.Messages[0].Content != "Be terse." {
		t.Errorf("system prompt = %q", req.Messages[0].Content)
	}
	if req.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", req.Model)
	}
}

func TestChat_UpstreamErrorInsideStream(t *testing.T) {
	streamer := &testutil.ScriptedStreamer{
		Scripts: [][]llm.Delta{{}},
		Errs:    []error{&llm.UnreachableError{Err: fmt.Errorf("connection refused")}},
	}
	srv := testServer(t, streamer)

	w := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)

	// The stream opened before the failure, so HTTP status is 200 and
	// the error travels as a frame.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	payloads := testutil.Payloads(t, w.Body.String())
	if len(payloads) != 2 {
		t.Fatalf("payloads = %v, want error frame and sentinel", payloads)
	}
	if !strings.Contains(payloads[0], `"error"`) || !strings.Contains(payloads[0], "failed to reach upstream API") {
		t.Errorf("payload[0] = %q, want error frame", payloads[0])
	}
	if payloads[1] != "[DONE]" {
		t.Errorf("payload[1] = %q, want sentinel", payloads[1])
	}
}

// recordingAppender records persisted messages and optionally fails.
type recordingAppender struct {
	mu      sync.Mutex
	records []session.Message
	err     error
}

func (a *recordingAppender) AddMessage(_ context.Context, _ uuid.UUID, _ string, msg session.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, msg)
	return a.err
}

func (a *recordingAppender) messages() []session.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]session.Message(nil), a.records...)
}

// streamerFunc adapts a function to llm.Streamer.
type streamerFunc func(ctx context.Context, req llm.Request) iter.Seq2[llm.Delta, error]

func (f streamerFunc) Stream(ctx context.Context, req llm.Request) iter.Seq2[llm.Delta, error] {
	return f(ctx, req)
}

func testChatHandler(streamer llm.Streamer, store messageAppender) *chatHandler {
	return &chatHandler{
		logger: discardLogger(),
		agent: agent.New(agent.Config{
			Streamer:    streamer,
			Executor:    tools.NewExecutor(nil, nil),
			Definitions: tools.Definitions(),
		}),
		store:     store,
		model:     "gpt-4o",
		maxTokens: 4096,
	}
}

func persistedChatBody(content string) string {
	return fmt.Sprintf(`{"messages":[{"role":"user","content":%q}],"sessionId":%q,"browserId":"browser-1"}`,
		content, uuid.NewString())
}

func TestChat_PersistsUserMessageBeforeStreaming(t *testing.T) {
	store := &recordingAppender{}

	persistedAtStreamStart := -1
	streamer := streamerFunc(func(_ context.Context, _ llm.Request) iter.Seq2[llm.Delta, error] {
		persistedAtStreamStart = len(store.messages())
		return func(yield func(llm.Delta, error) bool) {
			if !yield(llm.Delta{Content: "reply"}, nil) {
				return
			}
			yield(llm.Delta{FinishReason: "stop"}, nil)
		}
	})
	h := testChatHandler(streamer, store)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(persistedChatBody("remember this")))
	w := httptest.NewRecorder()
	h.send(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if persistedAtStreamStart != 1 {
		t.Errorf("persisted %d messages at stream start, want the user message already stored", persistedAtStreamStart)
	}

	msgs := store.messages()
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want user and assistant", len(msgs))
	}
	if msgs[0].Role != session.RoleUser || msgs[0].Content != "remember this" {
		t.Errorf("first persisted message = %+v", msgs[0])
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != "reply" || msgs[1].Model != "gpt-4o" {
		t.Errorf("second persisted message = %+v", msgs[1])
	}
}

func TestChat_PersistsPartialContentOnUpstreamError(t *testing.T) {
	store := &recordingAppender{}
	streamer := &testutil.ScriptedStreamer{
		Scripts: [][]llm.Delta{{{Content: "par"}}},
		Errs:    []error{&llm.RejectedError{Status: 500, Body: "boom"}},
	}
	h := testChatHandler(streamer, store)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(persistedChatBody("doomed turn")))
	w := httptest.NewRecorder()
	h.send(w, r)

	msgs := store.messages()
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want user message and partial reply", len(msgs))
	}
	if msgs[0].Role != session.RoleUser || msgs[0].Content != "doomed turn" {
		t.Errorf("user message = %+v, want it persisted despite the gateway error", msgs[0])
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != "par" {
		t.Errorf("assistant message = %+v, want the streamed partial content", msgs[1])
	}

	payloads := testutil.Payloads(t, w.Body.String())
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("stream not terminated: %v", payloads)
	}
}

func TestChat_StoreFailureDoesNotPoisonStream(t *testing.T) {
	store := &recordingAppender{err: fmt.Errorf("database down")}
	h := testChatHandler(contentStreamer("still ", "works"), store)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(persistedChatBody("hi")))
	w := httptest.NewRecorder()
	h.send(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	payloads := testutil.Payloads(t, w.Body.String())
	want := []string{`"still "`, `"works"`, "[DONE]"}
	if len(payloads) != len(want) {
		t.Fatalf("payloads = %v, want %v", payloads, want)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, payloads[i], want[i])
		}
	}
}

func TestChat_MockModeEndToEnd(t *testing.T) {
	ag := agent.New(agent.Config{
		Streamer:    llm.NewMock(),
		Executor:    tools.NewExecutor(nil, nil),
		Definitions: tools.Definitions(),
	})
	srv, err := NewServer(ServerConfig{Agent: ag, Model: "gpt-4o", MaxTokens: 4096})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	w := postChat(t, srv, `{"messages":[{"role":"user","content":"hello"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	payloads := testutil.Payloads(t, w.Body.String())
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Fatalf("stream not terminated: %v", payloads)
	}

	var text strings.Builder
	for _, p := range payloads[:len(payloads)-1] {
		var word string
		if err := json.Unmarshal([]byte(p), &word); err != nil {
			t.Fatalf("payload %q not a JSON string: %v", p, err)
		}
		text.WriteString(word)
	}
	if !strings.Contains(text.String(), "mock mode") {
		t.Errorf("mock reply = %q, want mock-mode label", text.String())
	}
}
