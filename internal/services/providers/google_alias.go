package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/services/registry"
)

// modelListTTL bounds staleness of the cached Google model list.
// Invalidation is time-only; there is no manual flush.
const modelListTTL = 10 * time.Minute

// GoogleAliasResolver maps fuzzy internal aliases ("gemini-3-flash") onto
// the concrete model ids the Google API currently serves. The model list
// is fetched on demand and cached process-wide.
type GoogleAliasResolver struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	models    []string
	fetchedAt time.Time
}

func NewGoogleAliasResolver(apiKey, baseURL string, logger *zap.Logger) *GoogleAliasResolver {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &GoogleAliasResolver{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type googleModelList struct {
	Models []struct {
		Name string `json:"name"` // "models/gemini-..."
	} `json:"models"`
}

// ResolveAlias returns the best concrete model id for an alias, fetching
// or refreshing the cached model list as needed.
func (r *GoogleAliasResolver) ResolveAlias(ctx context.Context, alias string) (string, error) {
	models, err := r.availableModels(ctx)
	if err != nil {
		return "", err
	}

	best := ""
	bestScore := 0
	for _, m := range models {
		if s := scoreAlias(alias, m); s > bestScore {
			best, bestScore = m, s
		}
	}
	if best == "" {
		return "", &UpstreamError{
			Provider: registry.ProviderGoogle,
			Details:  fmt.Sprintf("no Google model matches alias %q; the model registry may need a refresh", alias),
		}
	}

	if r.logger != nil {
		r.logger.Debug("resolved google model alias",
			zap.String("alias", alias),
			zap.String("model", best),
			zap.Int("score", bestScore))
	}
	return best, nil
}

func (r *GoogleAliasResolver) availableModels(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.models != nil && time.Since(r.fetchedAt) < modelListTTL {
		return r.models, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1beta/models?key="+r.apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		// A stale list beats a hard failure.
		if r.models != nil {
			return r.models, nil
		}
		return nil, &UpstreamError{Provider: registry.ProviderGoogle, Details: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if r.models != nil {
			return r.models, nil
		}
		return nil, &UpstreamError{
			Provider:   registry.ProviderGoogle,
			StatusCode: resp.StatusCode,
			Details:    string(detail),
		}
	}

	var list googleModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	r.models = names
	r.fetchedAt = time.Now()
	return names, nil
}

// scoreAlias ranks a candidate model id against the requested alias.
// Exact match dominates; otherwise substring containment plus family
// boosts, with penalties for preview/experimental builds.
func scoreAlias(alias, model string) int {
	a := strings.ToLower(alias)
	m := strings.ToLower(model)

	score := 0
	switch {
	case m == a:
		score += 1000
	case strings.Contains(m, a) || strings.Contains(a, m):
		score += 500
	}

	if strings.Contains(a, "flash") && strings.Contains(m, "flash") {
		score += 200
	}
	if strings.Contains(a, "pro") && strings.Contains(m, "pro") {
		score += 200
	}
	if strings.Contains(a, "gemini-3.1") && strings.Contains(m, "gemini-3.1") {
		score += 250
	} else if strings.Contains(a, "gemini-3") && strings.Contains(m, "gemini-3") {
		score += 150
	}

	if strings.Contains(m, "preview") {
		score -= 400
	}
	if strings.Contains(m, "exp") {
		score -= 400
	}
	if strings.Contains(m, "customtools") {
		score -= 600
	}

	if score < 0 {
		return 0
	}
	return score
}
