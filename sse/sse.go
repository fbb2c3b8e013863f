// Package sse implements the server-sent-events transport used to stream
// analysis progress and results to callers. The wire format is the standard
// one-line-per-event form: a "data: " prefix, a JSON payload, and a blank
// line as the event boundary. Each event is flushed to the client as soon
// as it is written so progress arrives in real time rather than at the end
// of the request.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is one streamed message. Type is always set; the remaining fields
// depend on it: progress events carry Step/Total/Label, result events carry
// Data, and error events carry Error.
type Event struct {
	Type  string          `json:"type"`
	Step  int             `json:"step,omitempty"`
	Total int             `json:"total,omitempty"`
	Label string          `json:"label,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Event types.
const (
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeError    = "error"
)

// Progress builds a progress event. Total is the display denominator,
// conventionally 100.
func Progress(step, total int, label string) Event {
	return Event{Type: TypeProgress, Step: step, Total: total, Label: label}
}

// Result builds the terminal success event wrapping an already-encoded
// payload.
func Result(data json.RawMessage) Event {
	return Event{Type: TypeResult, Data: data}
}

// Error builds the terminal error event.
func Error(msg string) Event {
	return Event{Type: TypeError, Error: msg}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeResult || e.Type == TypeError
}

// DefaultGraceDelay is how long Close waits after the last write before
// returning, giving intermediaries time to deliver the final event before
// the connection is torn down.
const DefaultGraceDelay = 100 * time.Millisecond

// Writer serializes events onto an http.ResponseWriter as an SSE stream.
// It is not safe for concurrent use; one request's events are written from
// a single goroutine.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	grace   time.Duration
	wrote   bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithGraceDelay overrides the delay applied by Close after the last
// event. Zero disables it.
func WithGraceDelay(d time.Duration) WriterOption {
	return func(w *Writer) { w.grace = d }
}

// NewWriter prepares w for event streaming and sends the SSE response
// headers. It returns an error if the underlying writer cannot flush,
// since an unflushable stream would buffer every event until the handler
// returns and defeat the point of streaming.
func NewWriter(w http.ResponseWriter, opts ...WriterOption) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sw := &Writer{w: w, flusher: flusher, grace: DefaultGraceDelay}
	for _, opt := range opts {
		opt(sw)
	}
	return sw, nil
}

// Send writes one event and flushes it to the client.
func (w *Writer) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	w.flusher.Flush()
	w.wrote = true
	return nil
}

// Close finishes the stream. If any event was written it sleeps for the
// configured grace delay so the final flush reaches the client before the
// handler returns and the connection is closed.
func (w *Writer) Close() {
	if w.wrote && w.grace > 0 {
		time.Sleep(w.grace)
	}
}
