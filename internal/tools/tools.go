// Package tools implements the built-in functions the model can invoke
// during a chat turn: current time, arithmetic evaluation and web
// search.
//
// The tool set is a closed enum. Execution failures never propagate as
// errors; they are folded into the result text so the model can read
// them and recover, keeping the agent loop alive.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/sgtlim/aether/internal/llm"
)

// Kind identifies one built-in tool.
type Kind int

const (
	KindCurrentTime Kind = iota
	KindCalculate
	KindWebSearch
)

// Wire names as declared to the model.
const (
	nameCurrentTime = "getCurrentTime"
	nameCalculate   = "calculate"
	nameWebSearch   = "webSearch"
)

// ParseKind maps a wire name to its Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case nameCurrentTime:
		return KindCurrentTime, true
	case nameCalculate:
		return KindCalculate, true
	case nameWebSearch:
		return KindWebSearch, true
	}
	return 0, false
}

// Name returns the wire name of the kind.
func (k Kind) Name() string {
	switch k {
	case KindCurrentTime:
		return nameCurrentTime
	case KindCalculate:
		return nameCalculate
	case KindWebSearch:
		return nameWebSearch
	}
	return "unknown"
}

// Source is one web result backing an answer.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Domain  string `json:"domain"`
	Snippet string `json:"snippet"`
	Favicon string `json:"favicon,omitempty"`
}

// Result is the outcome of one tool execution. Text always carries
// something readable for the model; Sources is set only by web search.
type Result struct {
	Text    string
	Sources []Source
}

// Searcher performs a web search. Implemented by BingClient; nil means
// search is not configured and a placeholder result is returned.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Source, error)
}

// Executor runs tool calls by name.
type Executor struct {
	searcher Searcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an executor. searcher may be nil.
func NewExecutor(searcher Searcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{searcher: searcher, logger: logger, now: time.Now}
}

// Definitions returns the tool declarations sent upstream.
func Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        nameCurrentTime,
				Description: "Get the current date and time",
				Parameters: &jsonschema.Schema{
					Type:       "object",
					Properties: map[string]*jsonschema.Schema{},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        nameCalculate,
				Description: "Calculate a mathematical expression",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"expression": {
							Type:        "string",
							Description: "Mathematical expression to evaluate",
						},
					},
					Required: []string{"expression"},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        nameWebSearch,
				Description: "Search the web for current information. Use this when the user asks about current events, recent news, or real-time data.",
				Parameters: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"query": {
							Type:        "string",
							Description: "Search query",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}

// Execute runs the named tool with JSON-encoded arguments. It never
// returns an error: unknown names, bad arguments and runtime failures
// all come back as result text.
func (e *Executor) Execute(ctx context.Context, name, argsJSON string) Result {
	kind, ok := ParseKind(name)
	if !ok {
		return Result{Text: fmt.Sprintf("Unknown tool: %s", name)}
	}

	e.logger.Debug("executing tool", "tool", name)

	switch kind {
	case KindCurrentTime:
		return Result{Text: fmt.Sprintf("현재 시간: %s", e.now().UTC().Format(time.RFC3339))}

	case KindCalculate:
		var args struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return toolError(err)
		}
		value, err := Evaluate(args.Expression)
		if err != nil {
			return toolError(err)
		}
		return Result{Text: fmt.Sprintf("계산 결과: %s = %s", args.Expression, formatNumber(value))}

	case KindWebSearch:
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return toolError(err)
		}
		return e.webSearch(ctx, args.Query)
	}

	return Result{Text: fmt.Sprintf("Unknown tool: %s", name)}
}

func (e *Executor) webSearch(ctx context.Context, query string) Result {
	if e.searcher == nil {
		return Result{Text: fmt.Sprintf("Web search results for %q:\n"+
			"1. Web search is not configured. Set BING_API_KEY environment variable to enable real web search.\n"+
			"2. This is a mock result for: %s", query, query)}
	}

	sources, err := e.searcher.Search(ctx, query)
	if err != nil {
		return toolError(err)
	}
	if len(sources) == 0 {
		return Result{Text: fmt.Sprintf("No results found for %q", query)}
	}

	text := ""
	for i, s := range sources {
		if i > 0 {
			text += "\n\n"
		}
		text += fmt.Sprintf("%d. **%s**\n   %s\n   %s", i+1, s.Title, s.Snippet, s.URL)
	}
	return Result{Text: text, Sources: sources}
}

func toolError(err error) Result {
	return Result{Text: fmt.Sprintf("Tool error: %v", err)}
}

// formatNumber renders without a trailing ".0" for integral values.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
