package registry

import "fmt"

// Provider identifies one of the three upstream vendors.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// Tier is the stable internal model identifier, independent of the
// provider's concrete version string.
type Tier string

const (
	TierOpus        Tier = "opus-4.6"
	TierSonnet      Tier = "sonnet-4.6"
	TierHaiku       Tier = "haiku-4.5"
	TierGPTMini     Tier = "gpt-5-mini"
	TierGeminiFlash Tier = "gemini-3-flash"
	TierGeminiPro   Tier = "gemini-3.1-pro"
)

// Entry maps a tier to its provider, concrete model id and limits.
// ProviderModelID and BudgetCap are the single source of truth for every
// route decision carrying this tier.
type Entry struct {
	Provider        Provider
	ProviderModelID string
	BudgetCap       int
	SupportsImages  bool
}

var entries = map[Tier]Entry{
	TierOpus:        {Provider: ProviderAnthropic, ProviderModelID: "claude-opus-4-6", BudgetCap: 16000},
	TierSonnet:      {Provider: ProviderAnthropic, ProviderModelID: "claude-sonnet-4-6", BudgetCap: 12000},
	TierHaiku:       {Provider: ProviderAnthropic, ProviderModelID: "claude-haiku-4-5", BudgetCap: 6000},
	TierGPTMini:     {Provider: ProviderOpenAI, ProviderModelID: "gpt-5-mini", BudgetCap: 6000},
	TierGeminiFlash: {Provider: ProviderGoogle, ProviderModelID: "gemini-3-flash", BudgetCap: 8000, SupportsImages: true},
	TierGeminiPro:   {Provider: ProviderGoogle, ProviderModelID: "gemini-3.1-pro", BudgetCap: 16000, SupportsImages: true},
}

// Lookup returns the registry entry for a tier.
func Lookup(tier Tier) (Entry, error) {
	e, ok := entries[tier]
	if !ok {
		return Entry{}, fmt.Errorf("unknown model tier: %s", tier)
	}
	return e, nil
}

// MustLookup panics on an unknown tier. Only for process-constant tiers.
func MustLookup(tier Tier) Entry {
	e, err := Lookup(tier)
	if err != nil {
		panic(err)
	}
	return e
}

// IsKnown reports whether the tier exists in the registry.
func IsKnown(tier Tier) bool {
	_, ok := entries[tier]
	return ok
}

// Tiers returns all registered tiers in a stable order.
func Tiers() []Tier {
	return []Tier{TierOpus, TierSonnet, TierHaiku, TierGPTMini, TierGeminiFlash, TierGeminiPro}
}
