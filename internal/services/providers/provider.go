package providers

import (
	"context"
	"fmt"
	"io"

	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/transform"
)

// Message and ImageAttachment live in the transform package, which owns
// the generic wire shape; they are aliased here so adapter callers deal
// with a single package.
type (
	Message         = transform.Message
	ImageAttachment = transform.ImageAttachment
)

// CallRequest is everything an adapter needs to start one streaming
// completion.
type CallRequest struct {
	ModelID       string
	BudgetCap     int
	Messages      []Message
	Images        []ImageAttachment
	ThinkingLevel string // google flash only: "low" | "high" | ""
}

// DeltaExtractor converts one upstream event payload into zero or more
// plain-text delta strings.
type DeltaExtractor func(payload []byte) []string

// StreamHandle is a live upstream stream plus the metadata needed to
// normalize it.
type StreamHandle struct {
	Body                   io.ReadCloser
	ExtractDeltas          DeltaExtractor
	EffectiveModelID       string
	EffectiveThinkingLevel string // "low" | "high" | "none" | ""
}

// Adapter is the closed set of provider integrations. New providers are
// added by extending the model registry and adding an adapter case.
type Adapter interface {
	Provider() registry.Provider
	CallStream(ctx context.Context, req *CallRequest) (*StreamHandle, error)
}

// UpstreamError is a non-2xx or transport failure from a provider,
// surfaced to the client with the provider identified.
type UpstreamError struct {
	Provider   registry.Provider
	StatusCode int
	Details    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Details)
}
