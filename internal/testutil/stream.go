package testutil

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/sgtlim/aether/internal/llm"
)

// ScriptedStreamer replays one canned delta script per Stream call and
// records every request it receives. The zero value fails the first
// call; populate Scripts first.
type ScriptedStreamer struct {
	mu       sync.Mutex
	requests []llm.Request
	calls    int

	// Scripts holds the deltas for each successive call.
	Scripts [][]llm.Delta
	// Errs, when non-nil at the call's index, is yielded as a terminal
	// error after that call's script.
	Errs []error
}

func (s *ScriptedStreamer) Stream(_ context.Context, req llm.Request) iter.Seq2[llm.Delta, error] {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	return func(yield func(llm.Delta, error) bool) {
		if call >= len(s.Scripts) {
			yield(llm.Delta{}, fmt.Errorf("unexpected call %d: only %d scripts", call+1, len(s.Scripts)))
			return
		}
		for _, d := range s.Scripts[call] {
			if !yield(d, nil) {
				return
			}
		}
		if call < len(s.Errs) && s.Errs[call] != nil {
			yield(llm.Delta{}, s.Errs[call])
		}
	}
}

// Requests returns a copy of the recorded requests.
func (s *ScriptedStreamer) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// Calls reports how many times Stream was invoked.
func (s *ScriptedStreamer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
