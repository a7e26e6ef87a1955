package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/transform"
)

type OpenAIAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Logger  *zap.Logger
}

func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  cfg.Logger,
	}, nil
}

func (a *OpenAIAdapter) Provider() registry.Provider {
	return registry.ProviderOpenAI
}

type openAIRequest struct {
	Model               string                    `json:"model"`
	Messages            []transform.OpenAIMessage `json:"messages"`
	MaxCompletionTokens int                       `json:"max_completion_tokens,omitempty"`
	MaxTokens           int                       `json:"max_tokens,omitempty"`
	Stream              bool                      `json:"stream"`
}

// CallStream posts a streaming chat completion. Newer models reject the
// legacy max_tokens field while older deployments reject
// max_completion_tokens, so a 400 naming the field triggers one retry
// with the legacy spelling.
func (a *OpenAIAdapter) CallStream(ctx context.Context, call *CallRequest) (*StreamHandle, error) {
	messages := transform.ToOpenAI(call.Messages, call.Images)

	body := openAIRequest{
		Model:               call.ModelID,
		Messages:            messages,
		MaxCompletionTokens: call.BudgetCap,
		Stream:              true,
	}

	resp, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		if strings.Contains(string(detail), "max_completion_tokens") {
			if a.logger != nil {
				a.logger.Debug("retrying openai call with legacy max_tokens field",
					zap.String("model", call.ModelID))
			}
			legacy := openAIRequest{
				Model:     call.ModelID,
				Messages:  messages,
				MaxTokens: call.BudgetCap,
				Stream:    true,
			}
			resp, err = a.post(ctx, legacy)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, &UpstreamError{
				Provider:   registry.ProviderOpenAI,
				StatusCode: http.StatusBadRequest,
				Details:    string(detail),
			}
		}
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &UpstreamError{
			Provider:   registry.ProviderOpenAI,
			StatusCode: resp.StatusCode,
			Details:    string(detail),
		}
	}

	return &StreamHandle{
		Body:             resp.Body,
		ExtractDeltas:    extractOpenAIDeltas,
		EffectiveModelID: call.ModelID,
	}, nil
}

func (a *OpenAIAdapter) post(ctx context.Context, body openAIRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: registry.ProviderOpenAI, Details: err.Error()}
	}
	return resp, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func extractOpenAIDeltas(payload []byte) []string {
	var chunk openAIStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil
	}
	var deltas []string
	for _, c := range chunk.Choices {
		if c.Delta.Content != "" {
			deltas = append(deltas, c.Delta.Content)
		}
	}
	return deltas
}
