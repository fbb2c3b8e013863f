package sse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

const dataPrefix = "data: "

// Handler receives each successfully decoded event, in stream order.
type Handler func(Event)

// Reader reassembles events from a raw SSE byte stream. Network reads can
// split an event across chunks or pack several events into one chunk, so
// the reader accumulates bytes in a buffer, extracts every completed event
// (delimited by a blank line), and keeps any trailing fragment for the
// next read.
type Reader struct {
	src    io.Reader
	buf    strings.Builder
	logger *slog.Logger
}

// NewReader wraps src, typically an http.Response body. A nil logger
// falls back to slog.Default.
func NewReader(src io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{src: src, logger: logger}
}

// Read consumes the stream until it ends or ctx is cancelled, invoking
// handle once per decoded event. A malformed event is logged and skipped
// rather than aborting the stream, so a garbled progress event cannot cost
// the caller the result event behind it. Returns nil on clean EOF.
func (r *Reader) Read(ctx context.Context, handle Handler) error {
	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.src.Read(chunk)
		if n > 0 {
			r.buf.Write(chunk[:n])
			r.dispatch(handle)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// dispatch extracts every completed event from the buffer, leaving any
// incomplete trailing fragment in place.
func (r *Reader) dispatch(handle Handler) {
	text := r.buf.String()
	parts := strings.Split(text, "\n\n")
	// The last element is either "" (the buffer ended exactly on a
	// boundary) or a fragment of the next event; either way it stays.
	rest := parts[len(parts)-1]
	for _, raw := range parts[:len(parts)-1] {
		r.decode(raw, handle)
	}
	r.buf.Reset()
	r.buf.WriteString(rest)
}

func (r *Reader) decode(raw string, handle Handler) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if !strings.HasPrefix(raw, dataPrefix) {
		r.logger.Warn("skipping stream line without data prefix", "line", raw)
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(raw, dataPrefix)), &ev); err != nil {
		r.logger.Warn("skipping undecodable stream event", "error", err, "raw", raw)
		return
	}
	handle(ev)
}

// ReadAll is a convenience wrapper around Read that collects every event
// into a slice. Intended for tests and short streams.
func (r *Reader) ReadAll(ctx context.Context) ([]Event, error) {
	var events []Event
	err := r.Read(ctx, func(ev Event) { events = append(events, ev) })
	return events, err
}
