// Package testutil provides shared helpers for package tests: SSE
// stream inspection, a scripted model streamer, and a gated Postgres
// container.
package testutil

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sgtlim/aether/internal/sse"
)

// Payloads decodes every data payload from a raw SSE stream, the
// [DONE] sentinel included.
func Payloads(t *testing.T, raw string) []string {
	t.Helper()

	var payloads []string
	dec := sse.NewDecoder(strings.NewReader(raw))
	for {
		p, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return payloads
		}
		if err != nil {
			t.Fatalf("decode SSE stream: %v", err)
		}
		payloads = append(payloads, p)
	}
}
