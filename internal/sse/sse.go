// Package sse implements the Server-Sent-Events wire format used between
// the chat service and its clients, and between the service and the
// upstream model API.
//
// Outgoing frames are always "data: <json>\n\n". A stream is terminated
// by exactly one "data: [DONE]\n\n" frame; the sentinel is mandatory and
// is the last frame even on error paths.
//
// The Decoder tolerates frames split at arbitrary byte boundaries:
// transport reads are not guaranteed to align with logical event
// boundaries, so it keeps the trailing incomplete line in a rolling
// buffer and only processes complete lines.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Done is the stream-termination sentinel payload.
const Done = "[DONE]"

// Writer frames outgoing SSE events onto an http.ResponseWriter.
//
// Writer is not safe for concurrent use; the agent loop is the single
// producer for a stream.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewWriter creates an SSE writer and sets the response headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// NewWriterTo creates a writer over a plain io.Writer. Used in tests and
// anywhere flushing is a no-op.
func NewWriterTo(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Data writes one JSON-encoded data frame. Frames are written atomically:
// either the whole "data: <json>\n\n" sequence is written or the stream
// is considered broken.
func (w *Writer) Data(v any) error {
	if w.closed {
		return fmt.Errorf("write on closed stream")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	w.flush()
	return nil
}

// Close writes the [DONE] sentinel and closes the stream. Close is
// idempotent; only the first call emits the sentinel.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", Done); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}

	w.flush()
	return nil
}

// Closed reports whether the sentinel has been written.
func (w *Writer) Closed() bool {
	return w.closed
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}

// Decoder parses incoming SSE bytes into data payloads.
//
// Lines not prefixed with "data: " are ignored (keep-alives, comments,
// event names). The payload of each data line is returned verbatim after
// whitespace trimming; interpreting it (JSON, sentinel) is the caller's
// concern.
type Decoder struct {
	r    io.Reader
	rest []byte
	buf  []byte
	err  error
}

// dataPrefix per the SSE format; the decoder only consumes data lines.
const dataPrefix = "data: "

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 4096)}
}

// Next returns the next data payload. It returns io.EOF when the
// underlying reader is exhausted; a trailing line without a newline is
// discarded, matching the line-buffering discipline of the upstream
// protocol.
func (d *Decoder) Next() (string, error) {
	for {
		if line, ok := d.takeLine(); ok {
			if !strings.HasPrefix(line, dataPrefix) {
				continue
			}
			return strings.TrimSpace(line[len(dataPrefix):]), nil
		}

		if d.err != nil {
			return "", d.err
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.rest = append(d.rest, d.buf[:n]...)
		}
		if err != nil {
			// Drain complete lines already buffered before
			// reporting the error.
			d.err = err
		}
	}
}

// takeLine pops one complete line from the rolling buffer.
func (d *Decoder) takeLine() (string, bool) {
	idx := -1
	for i, b := range d.rest {
		if b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}

	line := string(d.rest[:idx])
	d.rest = d.rest[idx+1:]
	line = strings.TrimSuffix(line, "\r")
	return line, true
}
