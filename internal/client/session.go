package client

import (
	"context"
	"sync"

	"github.com/sgtlim/aether/internal/tools"
)

// Session accumulates a conversation on the client side. At most one
// assistant message is open at a time; tokens append to it as they
// arrive. Aborting a turn keeps the partial content received so far.
//
// Session is safe for concurrent use; Abort may be called from another
// goroutine while Send is streaming. Sending while a turn is in flight
// aborts that turn first (last writer wins, not queued).
type Session struct {
	mu        sync.Mutex
	client    *Client
	messages  []Message
	sources   []tools.Source
	lastError string
	streaming bool
	cancel    context.CancelFunc
	// gen increments per turn; late callbacks from an aborted stream
	// carry a stale gen and are dropped.
	gen uint64

	// Model, SystemPrompt, Tools, SessionID and BrowserID are copied
	// into each request. Tools nil means the server default (enabled).
	Model        string
	SystemPrompt string
	Tools        *bool
	SessionID    string
	BrowserID    string

	// OnToken, when set, observes each appended token.
	OnToken func(text string)
}

// NewSession creates an empty conversation against the given client.
func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// Send appends a user message and streams the assistant reply,
// blocking until the turn completes or is aborted. A turn already in
// flight is aborted first; its partial assistant content stays in the
// transcript. Aborting is not an error.
func (s *Session) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.streaming {
		if cancel := s.cancel; cancel != nil {
			s.cancel = nil
			cancel()
		}
	}
	s.streaming = true
	s.gen++
	gen := s.gen
	s.lastError = ""
	s.sources = nil

	s.messages = append(s.messages, Message{Role: "user", Content: content})
	history := make([]Message, len(s.messages))
	copy(history, s.messages)
	// Open the assistant message tokens will accrete into.
	s.messages = append(s.messages, Message{Role: "assistant"})

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	req := Request{
		Messages:     history,
		Model:        s.Model,
		SystemPrompt: s.SystemPrompt,
		Tools:        s.Tools,
		SessionID:    s.SessionID,
		BrowserID:    s.BrowserID,
	}
	s.mu.Unlock()
	defer cancel()

	err := s.client.Stream(ctx, req, Events{
		OnChunk:   func(text string) { s.appendToken(gen, text) },
		OnSources: func(sources []tools.Source) { s.setSources(gen, sources) },
		OnError:   func(message string) { s.setError(gen, message) },
	})

	s.mu.Lock()
	if gen == s.gen {
		s.streaming = false
		s.cancel = nil
	}
	s.mu.Unlock()
	return err
}

// Abort cancels the in-flight turn, if any. The partially received
// assistant content is preserved.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.streaming = false
	// Invalidate late callbacks from the cancelled stream.
	s.gen++
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset aborts any in-flight turn and clears the transcript, sources
// and last error. Model, prompt and identity settings are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.streaming = false
	s.gen++
	s.messages = nil
	s.sources = nil
	s.lastError = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Streaming reports whether a turn is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Messages returns a copy of the transcript, the open assistant
// message included.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Sources returns the web results attached to the latest turn.
func (s *Session) Sources() []tools.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tools.Source(nil), s.sources...)
}

// LastError returns the error frame of the latest turn, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) appendToken(gen uint64, text string) {
	s.mu.Lock()
	if gen != s.gen || len(s.messages) == 0 {
		s.mu.Unlock()
		return
	}
	s.messages[len(s.messages)-1].Content += text
	observer := s.OnToken
	s.mu.Unlock()

	if observer != nil {
		observer(text)
	}
}

func (s *Session) setSources(gen uint64, sources []tools.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.sources = append(s.sources, sources...)
}

func (s *Session) setError(gen uint64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.lastError = message
}
