package sse

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriterHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, WithGraceDelay(0))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestWriterEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, WithGraceDelay(0))
	require.NoError(t, err)

	require.NoError(t, w.Send(Progress(18, 100, "Looking up metrics")))
	require.NoError(t, w.Send(Result(json.RawMessage(`{"analysis":{}}`))))
	w.Close()

	body := rec.Body.String()
	events := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, events, 2)

	for _, raw := range events {
		assert.True(t, strings.HasPrefix(raw, "data: "), "each event carries the data prefix: %q", raw)
	}

	var first Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[0], "data: ")), &first))
	assert.Equal(t, TypeProgress, first.Type)
	assert.Equal(t, 18, first.Step)
	assert.Equal(t, 100, first.Total)
	assert.Equal(t, "Looking up metrics", first.Label)

	var second Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[1], "data: ")), &second))
	assert.Equal(t, TypeResult, second.Type)
	assert.True(t, second.Terminal())

	assert.True(t, rec.Flushed, "events must be flushed as written")
}

func TestEventConstructors(t *testing.T) {
	p := Progress(42, 100, "working")
	assert.Equal(t, TypeProgress, p.Type)
	assert.False(t, p.Terminal())

	r := Result(json.RawMessage(`{}`))
	assert.True(t, r.Terminal())

	e := Error("backend is overloaded")
	assert.True(t, e.Terminal())
	assert.Equal(t, "backend is overloaded", e.Error)
}
