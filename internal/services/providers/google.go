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

type GoogleAdapter struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	resolver *GoogleAliasResolver
	logger   *zap.Logger
}

type GoogleConfig struct {
	APIKey   string
	BaseURL  string
	Resolver *GoogleAliasResolver
	Logger   *zap.Logger
}

func NewGoogleAdapter(cfg GoogleConfig) (*GoogleAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewGoogleAliasResolver(cfg.APIKey, baseURL, cfg.Logger)
	}
	return &GoogleAdapter{
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 120 * time.Second},
		resolver: resolver,
		logger:   cfg.Logger,
	}, nil
}

func (a *GoogleAdapter) Provider() registry.Provider {
	return registry.ProviderGoogle
}

type googleThinkingConfig struct {
	ThinkingLevel string `json:"thinkingLevel,omitempty"` // "LOW" | "HIGH"
}

type googleGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens"`
	ThinkingConfig  *googleThinkingConfig `json:"thinkingConfig,omitempty"`
}

type googleRequest struct {
	Contents         []transform.GoogleContent `json:"contents"`
	GenerationConfig googleGenerationConfig    `json:"generationConfig"`
}

// CallStream resolves the model alias, then posts a streaming
// generateContent call. The thinking-level hint applies only to the
// flash tier; a 400 mentioning "thinking" triggers one retry without the
// hint, reported as EffectiveThinkingLevel "none".
func (a *GoogleAdapter) CallStream(ctx context.Context, call *CallRequest) (*StreamHandle, error) {
	modelID, err := a.resolver.ResolveAlias(ctx, call.ModelID)
	if err != nil {
		return nil, err
	}

	body := googleRequest{
		Contents:         transform.ToGoogle(call.Messages, call.Images),
		GenerationConfig: googleGenerationConfig{MaxOutputTokens: call.BudgetCap},
	}
	effectiveThinking := ""
	if call.ThinkingLevel != "" {
		body.GenerationConfig.ThinkingConfig = &googleThinkingConfig{
			ThinkingLevel: strings.ToUpper(call.ThinkingLevel),
		}
		effectiveThinking = strings.ToLower(call.ThinkingLevel)
	}

	resp, err := a.post(ctx, modelID, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusBadRequest && body.GenerationConfig.ThinkingConfig != nil {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		if strings.Contains(strings.ToLower(string(detail)), "thinking") {
			if a.logger != nil {
				a.logger.Debug("retrying google call without thinking hint",
					zap.String("model", modelID))
			}
			body.GenerationConfig.ThinkingConfig = nil
			effectiveThinking = "none"
			resp, err = a.post(ctx, modelID, body)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, &UpstreamError{
				Provider:   registry.ProviderGoogle,
				StatusCode: http.StatusBadRequest,
				Details:    string(detail),
			}
		}
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &UpstreamError{
			Provider:   registry.ProviderGoogle,
			StatusCode: resp.StatusCode,
			Details:    string(detail),
		}
	}

	return &StreamHandle{
		Body:                   resp.Body,
		ExtractDeltas:          extractGoogleDeltas,
		EffectiveModelID:       modelID,
		EffectiveThinkingLevel: effectiveThinking,
	}, nil
}

func (a *GoogleAdapter) post(ctx context.Context, modelID string, body googleRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", a.baseURL, modelID, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: registry.ProviderGoogle, Details: err.Error()}
	}
	return resp, nil
}

type googleStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func extractGoogleDeltas(payload []byte) []string {
	var chunk googleStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil
	}
	var deltas []string
	for _, c := range chunk.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				deltas = append(deltas, p.Text)
			}
		}
	}
	return deltas
}
