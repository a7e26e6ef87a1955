package pricing

import "github.com/prismgw/prism/internal/services/registry"

// Version tags the whole pricing table. Bump it whenever any rate changes
// so downstream cost records can be attributed to the table they were
// computed against.
const Version = "2026-08-01"

// Entry holds per-1M-token USD rates for one model tier.
type Entry struct {
	InputRatePer1M     float64
	OutputRatePer1M    float64
	ReasoningRatePer1M float64 // 0 means "use the output rate"
	AsOfDate           string
	SourceRef          string
	IsEstimated        bool
}

var table = map[registry.Tier]Entry{
	registry.TierOpus: {
		InputRatePer1M:  15.0,
		OutputRatePer1M: 75.0,
		AsOfDate:        "2026-08-01",
		SourceRef:       "anthropic.com/pricing",
	},
	registry.TierSonnet: {
		InputRatePer1M:  3.0,
		OutputRatePer1M: 15.0,
		AsOfDate:        "2026-08-01",
		SourceRef:       "anthropic.com/pricing",
	},
	registry.TierHaiku: {
		InputRatePer1M:  0.8,
		OutputRatePer1M: 4.0,
		AsOfDate:        "2026-08-01",
		SourceRef:       "anthropic.com/pricing",
	},
	registry.TierGPTMini: {
		InputRatePer1M:  0.25,
		OutputRatePer1M: 2.0,
		AsOfDate:        "2026-08-01",
		SourceRef:       "openai.com/api/pricing",
		IsEstimated:     true,
	},
	registry.TierGeminiFlash: {
		InputRatePer1M:     0.3,
		OutputRatePer1M:    2.5,
		ReasoningRatePer1M: 2.5,
		AsOfDate:           "2026-08-01",
		SourceRef:          "ai.google.dev/pricing",
		IsEstimated:        true,
	},
	registry.TierGeminiPro: {
		InputRatePer1M:  2.0,
		OutputRatePer1M: 12.0,
		AsOfDate:        "2026-08-01",
		SourceRef:       "ai.google.dev/pricing",
		IsEstimated:     true,
	},
}

// Rates returns the pricing entry for a tier, if present.
func Rates(tier registry.Tier) (Entry, bool) {
	e, ok := table[tier]
	return e, ok
}
