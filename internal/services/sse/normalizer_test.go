package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismgw/prism/internal/services/providers"
)

type testFlusher struct {
	bytes.Buffer
	flushes int
}

func (f *testFlusher) Flush() { f.flushes++ }

// extractJSONText pulls {"text": "..."} payloads, mimicking an adapter
// extractor over a minimal wire shape.
func extractJSONText(payload []byte) []string {
	var ev struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil
	}
	if ev.Text == "" {
		return nil
	}
	return []string{ev.Text}
}

func upstream(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func decodeEvents(t *testing.T, raw string) []string {
	t.Helper()
	var texts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			texts = append(texts, "[DONE]")
			continue
		}
		var ev canonicalEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		assert.Equal(t, "content_block_delta", ev.Type)
		texts = append(texts, ev.Delta.Text)
	}
	return texts
}

func TestPipeEmitsCanonicalEventsAndSingleDone(t *testing.T) {
	w := &testFlusher{}
	var collected []string
	completes := 0

	err := Pipe(context.Background(),
		upstream(
			`data: {"text":"Hello"}`,
			`data: {"text":", "}`,
			`: comment line`,
			`event: ping`,
			`data: {"other":"ignored"}`,
			`data: {"text":"world"}`,
			`data: [DONE]`,
		),
		extractJSONText, w, Options{
			OnDelta:    func(s string) { collected = append(collected, s) },
			OnComplete: func() { completes++ },
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", ", ", "world"}, collected)
	assert.Equal(t, 1, completes)

	events := decodeEvents(t, w.String())
	assert.Equal(t, []string{"Hello", ", ", "world", "[DONE]"}, events)
}

func TestPipeIgnoresMalformedLines(t *testing.T) {
	w := &testFlusher{}
	err := Pipe(context.Background(),
		upstream(
			`data: not-json`,
			`garbage without prefix`,
			`data:`,
			`data: {"text":"ok"}`,
		),
		extractJSONText, w, Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "[DONE]"}, decodeEvents(t, w.String()))
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("connection reset")
}

func (r *failingReader) Close() error { return nil }

func TestPipeUpstreamErrorStillTerminates(t *testing.T) {
	w := &testFlusher{}
	completes := 0

	err := Pipe(context.Background(),
		&failingReader{data: "data: {\"text\":\"partial\"}\n"},
		extractJSONText, w, Options{OnComplete: func() { completes++ }})

	require.Error(t, err)
	assert.Equal(t, 1, completes)

	events := decodeEvents(t, w.String())
	assert.Equal(t, "[DONE]", events[len(events)-1])
	assert.Equal(t, 1, strings.Count(w.String(), "[DONE]"))
}

func TestPipeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &testFlusher{}
	completes := 0
	err := Pipe(ctx, upstream(`data: {"text":"never"}`), extractJSONText, w,
		Options{OnComplete: func() { completes++ }})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, completes)
	assert.Equal(t, 1, strings.Count(w.String(), "[DONE]"))
}

func TestCollectText(t *testing.T) {
	handle := &providers.StreamHandle{
		Body: upstream(
			`data: {"text":"alpha "}`,
			`data: {"text":"beta "}`,
			`data: {"text":"gamma"}`,
			`data: [DONE]`,
		),
		ExtractDeltas: extractJSONText,
	}

	text, err := CollectText(context.Background(), handle, 0)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma", text)
}

func TestCollectTextClampsToMaxChars(t *testing.T) {
	handle := &providers.StreamHandle{
		Body:          upstream(`data: {"text":"abcdefghij"}`, `data: {"text":"klmno"}`),
		ExtractDeltas: extractJSONText,
	}

	text, err := CollectText(context.Background(), handle, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", text)
}

func TestCollectTextClampKeepsValidUTF8(t *testing.T) {
	// "héllo wörld" has multibyte runes; a byte-index cut at 6 would land
	// inside one of them.
	handle := &providers.StreamHandle{
		Body:          upstream(`data: {"text":"héllo wörld"}`),
		ExtractDeltas: extractJSONText,
	}

	text, err := CollectText(context.Background(), handle, 9)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(text))
	assert.LessOrEqual(t, len(text), 9)
	assert.True(t, strings.HasPrefix(text, "héllo w"))
}
