package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/transform"
)

const anthropicVersion = "2023-06-01"

type AnthropicAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Logger  *zap.Logger
}

func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicAdapter{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  cfg.Logger,
	}, nil
}

func (a *AnthropicAdapter) Provider() registry.Provider {
	return registry.ProviderAnthropic
}

type anthropicRequest struct {
	Model     string                       `json:"model"`
	MaxTokens int                          `json:"max_tokens"`
	Messages  []transform.AnthropicMessage `json:"messages"`
	Stream    bool                         `json:"stream"`
}

func (a *AnthropicAdapter) CallStream(ctx context.Context, call *CallRequest) (*StreamHandle, error) {
	body := anthropicRequest{
		Model:     call.ModelID,
		MaxTokens: call.BudgetCap,
		Messages:  transform.ToAnthropic(call.Messages, call.Images),
		Stream:    true,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: registry.ProviderAnthropic, Details: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &UpstreamError{
			Provider:   registry.ProviderAnthropic,
			StatusCode: resp.StatusCode,
			Details:    string(detail),
		}
	}

	return &StreamHandle{
		Body:             resp.Body,
		ExtractDeltas:    extractAnthropicDeltas,
		EffectiveModelID: call.ModelID,
	}, nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// extractAnthropicDeltas pulls text out of content_block_delta events.
// All other event types (message_start, ping, content_block_stop, ...)
// yield nothing.
func extractAnthropicDeltas(payload []byte) []string {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil
	}
	if ev.Type != "content_block_delta" || ev.Delta.Text == "" {
		return nil
	}
	return []string{ev.Delta.Text}
}
