package pricing

import (
	"math"

	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

// projectedOutputRatio is the assumed output/prompt token ratio used for
// pre-flight estimates.
const projectedOutputRatio = 0.35

// minProjectedOutput floors the projected output so tiny prompts still
// produce a non-trivial estimate.
const minProjectedOutput = 64

// Estimate is a budget-grade cost projection computed before the upstream
// call is made.
type Estimate struct {
	PromptTokens          int
	ProjectedOutputTokens int
	EstimatedUSD          float64
	PricingVersion        string
	HasUnknownRate        bool
}

// Usage carries the final counters reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
}

// FinalCost is the post-stream reconciliation of an estimate.
type FinalCost struct {
	USD            float64
	PricingVersion string
	HasUnknownRate bool
}

// Engine computes pre-flight and final costs against the versioned
// pricing table.
type Engine struct {
	estimator *tokenizer.Estimator
}

func NewEngine(estimator *tokenizer.Estimator) *Engine {
	return &Engine{estimator: estimator}
}

// PreFlight estimates the cost of a request from its full context text,
// attached image count and any extra prompt tokens (memory block, video
// context) already counted elsewhere.
func (e *Engine) PreFlight(tier registry.Tier, fullContextText string, imageCount, extraPromptTokens int) Estimate {
	promptTokens := e.estimator.EstimateWithImages(fullContextText, imageCount) + extraPromptTokens

	projected := int(math.Ceil(float64(promptTokens) * projectedOutputRatio))
	if projected < minProjectedOutput {
		projected = minProjectedOutput
	}

	est := Estimate{
		PromptTokens:          promptTokens,
		ProjectedOutputTokens: projected,
		PricingVersion:        Version,
	}

	rates, ok := Rates(tier)
	if !ok {
		est.HasUnknownRate = true
		return est
	}

	est.EstimatedUSD = roundUSD(
		rates.InputRatePer1M*float64(promptTokens)/1e6 +
			rates.OutputRatePer1M*float64(projected)/1e6)
	return est
}

// Final reconciles the actual usage counters against the pricing table.
// The reasoning rate defaults to the output rate when unset.
func (e *Engine) Final(tier registry.Tier, usage Usage) FinalCost {
	rates, ok := Rates(tier)
	if !ok {
		return FinalCost{PricingVersion: Version, HasUnknownRate: true}
	}

	reasoningRate := rates.ReasoningRatePer1M
	if reasoningRate == 0 {
		reasoningRate = rates.OutputRatePer1M
	}

	usd := rates.InputRatePer1M*float64(usage.PromptTokens)/1e6 +
		rates.OutputRatePer1M*float64(usage.CompletionTokens)/1e6 +
		reasoningRate*float64(usage.ReasoningTokens)/1e6

	return FinalCost{USD: roundUSD(usd), PricingVersion: Version}
}

// roundUSD rounds to 1e-6 USD.
func roundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
