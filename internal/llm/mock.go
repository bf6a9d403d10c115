package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// mockWordInterval paces mock output so clients see incremental
// rendering rather than a single burst.
const mockWordInterval = 30 * time.Millisecond

// Mock synthesizes deterministic replies without any upstream call. It
// is the active Streamer when no API key is configured, so a fresh
// checkout works end to end.
type Mock struct {
	limiter *rate.Limiter
	// now is swappable in tests.
	now func() time.Time
}

// NewMock creates a mock streamer with word-level pacing.
func NewMock() *Mock {
	return &Mock{
		limiter: rate.NewLimiter(rate.Every(mockWordInterval), 1),
		now:     time.Now,
	}
}

// Stream yields the canned reply one whitespace token at a time, then a
// terminal delta with finish reason "stop". The reply depends only on
// the last message and the user turn count.
func (m *Mock) Stream(ctx context.Context, req Request) iter.Seq2[Delta, error] {
	return func(yield func(Delta, error) bool) {
		reply := m.reply(req.Messages)

		for _, word := range strings.Split(reply, " ") {
			if err := m.limiter.Wait(ctx); err != nil {
				yield(Delta{}, err)
				return
			}
			if !yield(Delta{Content: word + " "}, nil) {
				return
			}
		}
		yield(Delta{FinishReason: "stop"}, nil)
	}
}

func (m *Mock) reply(messages []Message) string {
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	turns := 0
	for _, msg := range messages {
		if msg.Role == RoleUser {
			turns++
		}
	}
	lower := strings.ToLower(last)

	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi"):
		return "Hello! I'm ChatGPT (mock mode). How can I help you today?"
	case strings.Contains(lower, "time") || strings.Contains(lower, "시간"):
		return fmt.Sprintf("🔧 Tool: getCurrentTime\n\n현재 시간: %s\n\nThe current time is shown above. Set OPENAI_API_KEY for real tool calling.",
			m.now().UTC().Format(time.RFC3339))
	case strings.Contains(lower, "name"):
		return "I'm ChatGPT, powered by OpenAI. Mock mode — set OPENAI_API_KEY for real responses."
	default:
		return fmt.Sprintf("Mock reply to: %q. Turn #%d. Set OPENAI_API_KEY for real responses.", truncate(last, 50), turns)
	}
}

// truncate shortens s to at most n runes. Cutting on runes keeps
// multi-byte input valid UTF-8.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
