// Package sse reduces the three upstream wire protocols to one canonical
// server-sent event format. Every non-empty delta becomes one
// content_block_delta event; the stream always ends with exactly one
// [DONE] terminator, upstream errors included.
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/prismgw/prism/internal/services/providers"
)

const doneSentinel = "[DONE]"

// canonicalEvent is the provider-agnostic event shape sent downstream.
type canonicalEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

// Options hooks callers into the normalization pass. OnDelta fires before
// the corresponding downstream write so callers can accumulate the
// assistant text; OnComplete fires exactly once, success or failure.
type Options struct {
	OnDelta    func(text string)
	OnComplete func()
}

// Flusher is the downstream write surface. http.ResponseWriter wrapped by
// the streaming middleware satisfies it.
type Flusher interface {
	io.Writer
	Flush()
}

// Pipe reads the upstream body line by line, extracts deltas with the
// adapter's extractor and writes canonical events downstream. It closes
// the upstream body, always writes exactly one [DONE] terminator and
// always invokes OnComplete once. The returned error reports upstream
// read failures or context cancellation; by then the downstream has
// already been terminated.
func Pipe(ctx context.Context, upstream io.ReadCloser, extract providers.DeltaExtractor, w Flusher, opts Options) error {
	defer func() { _ = upstream.Close() }()

	completed := false
	finish := func() {
		if completed {
			return
		}
		completed = true
		fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
		w.Flush()
		if opts.OnComplete != nil {
			opts.OnComplete()
		}
	}
	defer finish()

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == doneSentinel {
			continue
		}

		for _, delta := range extract([]byte(payload)) {
			if delta == "" {
				continue
			}
			if opts.OnDelta != nil {
				opts.OnDelta(delta)
			}
			if err := writeEvent(w, delta); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func writeEvent(w Flusher, text string) error {
	var ev canonicalEvent
	ev.Type = "content_block_delta"
	ev.Delta.Text = text

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// CollectText drains one upstream stream into a plain string, stopping
// early once maxChars is reached (0 means unbounded). Used by the debate
// orchestrator and the memory summarizer, which consume challenger and
// summary streams whole instead of forwarding them.
func CollectText(ctx context.Context, handle *providers.StreamHandle, maxChars int) (string, error) {
	defer func() { _ = handle.Body.Close() }()

	var sb strings.Builder
	scanner := bufio.NewScanner(handle.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == doneSentinel {
			continue
		}

		for _, delta := range handle.ExtractDeltas([]byte(payload)) {
			sb.WriteString(delta)
			if maxChars > 0 && sb.Len() >= maxChars {
				return clamp(sb.String(), maxChars), nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return sb.String(), err
	}
	return clamp(sb.String(), maxChars), nil
}

// clamp cuts s to at most maxChars bytes without splitting a UTF-8 rune.
func clamp(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
