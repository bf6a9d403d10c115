// Package agent drives the chat turn: it calls the model, streams
// content deltas to the client, executes requested tools, and feeds
// results back until the model produces a final answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sgtlim/aether/internal/llm"
	"github.com/sgtlim/aether/internal/sse"
	"github.com/sgtlim/aether/internal/tools"
)

// MaxLoops bounds model round-trips per turn. On the final iteration
// tools are withheld so the model must answer in text.
const MaxLoops = 5

// toolNotice frames shown to the client around tool execution.
const (
	toolNoticeStart = "\n\n🔧 Tool 실행 중... "
	toolNoticeEnd   = "\n\n"
)

// ToolExecutor runs one tool call. Failures are reported in the result
// text, never as errors.
type ToolExecutor interface {
	Execute(ctx context.Context, name, argsJSON string) tools.Result
}

// Agent orchestrates one streaming chat turn at a time. It is stateless
// across turns and safe for concurrent Run calls.
type Agent struct {
	streamer llm.Streamer
	executor ToolExecutor
	defs     []llm.Tool
	logger   *slog.Logger
}

// Config assembles an Agent.
type Config struct {
	Streamer    llm.Streamer
	Executor    ToolExecutor
	Definitions []llm.Tool
	Logger      *slog.Logger
}

// New creates an agent.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		streamer: cfg.Streamer,
		executor: cfg.Executor,
		defs:     cfg.Definitions,
		logger:   logger,
	}
}

// Params is one chat turn. Messages must already include the system
// message; Tools gates whether the model may call tools at all.
type Params struct {
	Model     string
	MaxTokens int
	Messages  []llm.Message
	Tools     bool
}

// errorFrame is the shape of a terminal error frame on the client
// stream.
type errorFrame struct {
	Error string `json:"error"`
}

// sourcesFrame carries web results that back the answer being streamed.
type sourcesFrame struct {
	Sources []tools.Source `json:"sources"`
}

// Run executes the agent loop, writing frames to w. The stream is
// always terminated with the [DONE] sentinel, on error paths included.
// It returns the assistant's text, which on an error path is whatever
// content was streamed before the failure. Model errors are terminal:
// they are reported to the client in an {"error": ...} frame and never
// retried.
func (a *Agent) Run(ctx context.Context, params Params, w *sse.Writer) (string, error) {
	defer w.Close()

	messages := params.Messages

	for loop := 1; loop <= MaxLoops; loop++ {
		req := llm.Request{
			Model:     params.Model,
			MaxTokens: params.MaxTokens,
			Messages:  messages,
		}
		if params.Tools && loop < MaxLoops {
			req.Tools = a.defs
		}

		content := ""
		finishReason := ""
		accum := newToolCallAccum()

		for delta, err := range a.streamer.Stream(ctx, req) {
			if err != nil {
				a.logger.Error("model stream failed", "loop", loop, "error", err)
				if werr := w.Data(errorFrame{Error: err.Error()}); werr != nil {
					a.logger.Warn("error frame not delivered", "error", werr)
				}
				return content, err
			}

			if delta.Content != "" {
				content += delta.Content
				if err := w.Data(delta.Content); err != nil {
					return content, fmt.Errorf("write content frame: %w", err)
				}
			}
			accum.add(delta.ToolCalls)
			if delta.FinishReason != "" {
				finishReason = delta.FinishReason
			}
		}

		if accum.empty() || finishReason != llm.FinishToolCalls {
			return content, nil
		}

		calls := accum.finalize()
		a.logger.Debug("executing tool calls", "loop", loop, "count", len(calls))

		if err := w.Data(toolNoticeStart); err != nil {
			return content, fmt.Errorf("write tool notice: %w", err)
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})

		for _, call := range calls {
			result := a.executor.Execute(ctx, call.Function.Name, call.Function.Arguments)

			if err := w.Data(fmt.Sprintf("[%s] ", call.Function.Name)); err != nil {
				return content, fmt.Errorf("write tool frame: %w", err)
			}
			if len(result.Sources) > 0 {
				if err := w.Data(sourcesFrame{Sources: result.Sources}); err != nil {
					return content, fmt.Errorf("write sources frame: %w", err)
				}
			}

			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result.Text,
				ToolCallID: call.ID,
			})
		}

		if err := w.Data(toolNoticeEnd); err != nil {
			return content, fmt.Errorf("write tool notice: %w", err)
		}
	}

	// MaxLoops exhausted with the model still asking for tools. The
	// final iteration ran without tool definitions, so this is only
	// reachable when the model hallucinates calls anyway.
	a.logger.Warn("agent loop exhausted", "maxLoops", MaxLoops)
	return "", nil
}
