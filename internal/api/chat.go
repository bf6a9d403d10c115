package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sgtlim/aether/internal/agent"
	"github.com/sgtlim/aether/internal/llm"
	"github.com/sgtlim/aether/internal/session"
	"github.com/sgtlim/aether/internal/sse"
)

// DefaultSystemPrompt is used when the request does not supply one.
const DefaultSystemPrompt = "You are a helpful, friendly assistant. Answer concisely and clearly."

// Request validation bounds. Violations are rejected with 400 before
// the SSE stream is opened.
const (
	maxMessages           = 200
	maxModelLength        = 50
	maxSystemPromptLength = 10000
	maxBodyBytes          = 1 << 20

	// persistTimeout bounds post-stream message persistence.
	persistTimeout = 5 * time.Second
)

// chatMessage is one history entry on the request wire.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// chatRequest is the POST /api/v1/chat body. Tools defaults to enabled
// when absent. SessionID and BrowserID are optional; both present means
// the turn is persisted.
type chatRequest struct {
	Messages     []chatMessage `json:"messages"`
	Model        string        `json:"model"`
	SystemPrompt string        `json:"systemPrompt"`
	Tools        *bool         `json:"tools"`
	SessionID    string        `json:"sessionId"`
	BrowserID    string        `json:"browserId"`
}

// messageAppender persists one message per call. Implemented by
// session.Store.
type messageAppender interface {
	AddMessage(ctx context.Context, sessionID uuid.UUID, browserID string, msg session.Message) error
}

// chatHandler streams chat turns over SSE.
type chatHandler struct {
	logger    *slog.Logger
	agent     *agent.Agent
	store     messageAppender // nil disables persistence
	model     string
	maxTokens int
}

var validRoles = map[string]bool{
	llm.RoleUser:      true,
	llm.RoleAssistant: true,
	llm.RoleSystem:    true,
	llm.RoleTool:      true,
}

// send handles POST /api/v1/chat. Validation failures are plain JSON
// errors; once the stream is open, all failures travel inside it as
// {"error": ...} frames followed by the [DONE] sentinel.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if maxBytesErr := new(http.MaxBytesError); errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}

	if code, msg := validateChatRequest(&req); code != "" {
		writeError(w, http.StatusBadRequest, code, msg, h.logger)
		return
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	model := req.Model
	if model == "" {
		model = h.model
	}

	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	sessionID, persist := h.persistTarget(&req)
	if persist {
		// The user message is recorded before streaming so a gateway
		// failure or client abort cannot lose it.
		h.persistUserMessage(r.Context(), sessionID, req.BrowserID, &req)
	}

	final, runErr := h.agent.Run(r.Context(), agent.Params{
		Model:     model,
		MaxTokens: h.maxTokens,
		Messages:  messages,
		Tools:     req.Tools == nil || *req.Tools,
	}, stream)
	if runErr != nil {
		// Already reported inside the stream; final carries whatever
		// content was streamed before the failure.
		h.logger.Warn("chat turn failed", "error", runErr, "model", model)
	}

	if persist {
		h.persistAssistantMessage(r.Context(), sessionID, req.BrowserID, model, final)
	}
}

// validateChatRequest returns an error code and message, or "" when the
// request is acceptable.
func validateChatRequest(req *chatRequest) (code, message string) {
	if len(req.Messages) == 0 {
		return "messages_required", "messages must contain at least one entry"
	}
	if len(req.Messages) > maxMessages {
		return "too_many_messages", "messages must contain at most 200 entries"
	}
	for _, m := range req.Messages {
		if !validRoles[m.Role] {
			return "invalid_role", "message role must be user, assistant, system or tool"
		}
	}
	if len(req.Model) > maxModelLength {
		return "model_too_long", "model must be 50 characters or fewer"
	}
	if len(req.SystemPrompt) > maxSystemPromptLength {
		return "system_prompt_too_long", "systemPrompt must be 10000 characters or fewer"
	}
	if req.SessionID != "" {
		if _, err := uuid.Parse(req.SessionID); err != nil {
			return "invalid_session_id", "sessionId must be a UUID"
		}
	}
	return "", ""
}

// persistTarget reports whether the turn should be persisted and to
// which session. Persistence is best effort on both sides of the
// stream: storage failures are logged and never surface to the client.
func (h *chatHandler) persistTarget(req *chatRequest) (uuid.UUID, bool) {
	if h.store == nil || req.SessionID == "" || req.BrowserID == "" {
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return uuid.Nil, false
	}
	return sessionID, true
}

// persistUserMessage records the turn's user message ahead of the
// stream.
func (h *chatHandler) persistUserMessage(ctx context.Context, sessionID uuid.UUID, browserID string, req *chatRequest) {
	last := req.Messages[len(req.Messages)-1]
	if last.Role != llm.RoleUser {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := h.store.AddMessage(pctx, sessionID, browserID, session.Message{
		Role:    session.RoleUser,
		Content: last.Content,
	})
	if err != nil {
		h.logger.Warn("persisting user message", "error", err, "session_id", sessionID)
	}
}

// persistAssistantMessage records the assistant reply after the stream
// ended, partial content from a failed or aborted turn included.
func (h *chatHandler) persistAssistantMessage(ctx context.Context, sessionID uuid.UUID, browserID, model, final string) {
	if final == "" {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := h.store.AddMessage(pctx, sessionID, browserID, session.Message{
		Role:    session.RoleAssistant,
		Content: final,
		Model:   model,
	})
	if err != nil {
		h.logger.Warn("persisting assistant message", "error", err, "session_id", sessionID)
	}
}
