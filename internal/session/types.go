// Package session persists conversations to PostgreSQL, keyed by the
// anonymous browser id that owns them.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Stored message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// DefaultTitle is the title of a freshly created session.
const DefaultTitle = "새 채팅"

// TitleMaxLength bounds auto-generated titles.
const TitleMaxLength = 30

// Session is one conversation. Messages are stored separately.
type Session struct {
	ID           uuid.UUID `json:"id"`
	BrowserID    string    `json:"browserId"`
	Title        string    `json:"title"`
	Pinned       bool      `json:"pinned"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is one stored conversation entry, ordered by Sequence within
// its session.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
}

// Update carries a partial session update; nil fields are untouched.
type Update struct {
	Title  *string `json:"title"`
	Pinned *bool   `json:"pinned"`
}

// AutoTitle derives a session title from the first user message,
// truncated to TitleMaxLength with an ellipsis.
func AutoTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxLength {
		return content
	}
	return string(runes[:TitleMaxLength]) + "..."
}
