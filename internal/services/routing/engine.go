package routing

import (
	"strings"

	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

// Rationale tags exposed in the X-Router-Rationale header.
const (
	RationaleManualOverride     = "manual-override"
	RationaleVideoDefaultPro    = "video-default-pro"
	RationaleImagesComplex      = "images-complex"
	RationaleImagesFast         = "images-fast"
	RationaleImagesDefaultFlash = "images-default-flash"
	RationaleCodeQuality        = "code-quality-priority"
	RationaleHighComplexity     = "high-complexity"
	RationaleUltraLowLatency    = "ultra-low-latency"
	RationaleLowComplexity      = "low-complexity"
	RationaleDefaultCost        = "default-cost-optimized"
)

// Params is the full routing input for one request. The query here is the
// augmented query (memory and video context already injected) and the
// session token count includes the injected block tokens.
type Params struct {
	UserQuery            string
	CurrentSessionTokens int
	Platform             string // "web" | "mobile"
	History              []providers.Message
	Images               []providers.ImageAttachment
	HasVideoAssets       bool
}

// Decision is the routing output. ProviderModelID and BudgetCap are
// derived solely from ModelTier via the model registry.
type Decision struct {
	Provider        registry.Provider
	ProviderModelID string
	ModelTier       registry.Tier
	BudgetCap       int
	Rationale       string
	ComplexityScore int
}

// Engine scores queries and picks a tier. Pure logic over typed input;
// the only side effect is optional decision logging in dev mode.
type Engine struct {
	estimator *tokenizer.Estimator
	logger    *zap.Logger
	devMode   bool
}

func NewEngine(estimator *tokenizer.Estimator, logger *zap.Logger, devMode bool) *Engine {
	return &Engine{estimator: estimator, logger: logger, devMode: devMode}
}

func decisionFor(tier registry.Tier, rationale string, score int) Decision {
	entry := registry.MustLookup(tier)
	return Decision{
		Provider:        entry.Provider,
		ProviderModelID: entry.ProviderModelID,
		ModelTier:       tier,
		BudgetCap:       entry.BudgetCap,
		Rationale:       rationale,
		ComplexityScore: score,
	}
}

// DetermineRoute evaluates the decision rules in order; first match wins.
// An override argument of "" means no override was requested or the
// requested one was not recognized.
func (e *Engine) DetermineRoute(params Params, override registry.Tier) Decision {
	score := complexityScore(e.estimator, params.UserQuery, params.CurrentSessionTokens)
	queryTokens := e.estimator.Estimate(params.UserQuery)
	total := params.CurrentSessionTokens

	d := e.decide(params, override, score, queryTokens, total)

	if e.devMode && e.logger != nil {
		e.logger.Debug("route decision",
			zap.String("tier", string(d.ModelTier)),
			zap.String("rationale", d.Rationale),
			zap.Int("complexity_score", d.ComplexityScore),
			zap.Int("query_tokens", queryTokens),
			zap.Int("session_tokens", total),
			zap.Bool("has_images", len(params.Images) > 0),
			zap.Bool("has_video", params.HasVideoAssets))
	}
	return d
}

func (e *Engine) decide(params Params, override registry.Tier, score, queryTokens, total int) Decision {
	if override != "" && registry.IsKnown(override) {
		return decisionFor(override, RationaleManualOverride, score)
	}

	if params.HasVideoAssets {
		return decisionFor(registry.TierGeminiPro, RationaleVideoDefaultPro, score)
	}

	if len(params.Images) > 0 {
		switch {
		case score >= 70 || total >= 60_000:
			return decisionFor(registry.TierGeminiPro, RationaleImagesComplex, score)
		case score <= 30 && total < 30_000:
			return decisionFor(registry.TierGeminiFlash, RationaleImagesFast, score)
		default:
			return decisionFor(registry.TierGeminiFlash, RationaleImagesDefaultFlash, score)
		}
	}

	codeHeavy := codeSignals(strings.ToLower(params.UserQuery)) >= 2

	switch {
	case codeHeavy && score >= 45 && total < 90_000:
		return decisionFor(registry.TierSonnet, RationaleCodeQuality, score)
	case score >= 80 || total > 100_000:
		return decisionFor(registry.TierOpus, RationaleHighComplexity, score)
	case score <= 18 && queryTokens < 80 && total < 12_000:
		return decisionFor(registry.TierGPTMini, RationaleUltraLowLatency, score)
	case score <= 25 && queryTokens < 100 && total < 10_000:
		return decisionFor(registry.TierHaiku, RationaleLowComplexity, score)
	default:
		return decisionFor(registry.TierGeminiFlash, RationaleDefaultCost, score)
	}
}
