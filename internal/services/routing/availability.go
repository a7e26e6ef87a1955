package routing

import (
	"fmt"

	"github.com/prismgw/prism/internal/services/registry"
)

// highContextThreshold is the session size beyond which the Google
// fallback escalates from flash to pro.
const highContextThreshold = 150_000

// ProviderStatus holds the two readiness gates for one provider.
type ProviderStatus struct {
	Enabled            bool
	CredentialsPresent bool
}

// Ready reports whether both gates hold.
func (s ProviderStatus) Ready() bool {
	return s.Enabled && s.CredentialsPresent
}

// Readiness is the per-provider gate table, read once at start-up.
type Readiness map[registry.Provider]ProviderStatus

// ReadyFor reports readiness of a single provider.
func (r Readiness) ReadyFor(p registry.Provider) bool {
	return r[p].Ready()
}

// AnyReady reports whether at least one provider is usable.
func (r Readiness) AnyReady() bool {
	for _, p := range []registry.Provider{registry.ProviderGoogle, registry.ProviderOpenAI, registry.ProviderAnthropic} {
		if r.ReadyFor(p) {
			return true
		}
	}
	return false
}

// ErrProviderUnavailable is returned when a manual override names a
// provider that is not ready; automatic decisions fall back instead.
type ErrProviderUnavailable struct {
	Provider registry.Provider
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s is not available (disabled or missing credentials)", e.Provider)
}

// ErrNoProvidersReady indicates a server misconfiguration: every provider
// failed its readiness gates.
type ErrNoProvidersReady struct{}

func (e *ErrNoProvidersReady) Error() string {
	return "no upstream providers are ready; check provider credentials and feature flags"
}

// NormalizeAvailability replaces a decision targeting an unready provider
// with a safe fallback. Manual overrides are never silently re-targeted.
// The fallback ladder prefers Google, then OpenAI, then Anthropic; the
// Google fallback tier escalates to pro past the high-context threshold.
func NormalizeAvailability(d Decision, ready Readiness, sessionTokens int) (Decision, error) {
	if ready.ReadyFor(d.Provider) {
		return d, nil
	}

	if d.Rationale == RationaleManualOverride {
		return Decision{}, &ErrProviderUnavailable{Provider: d.Provider}
	}

	googleTier := registry.TierGeminiFlash
	if sessionTokens > highContextThreshold {
		googleTier = registry.TierGeminiPro
	}

	ladder := []struct {
		provider registry.Provider
		tier     registry.Tier
	}{
		{registry.ProviderGoogle, googleTier},
		{registry.ProviderOpenAI, registry.TierGPTMini},
		{registry.ProviderAnthropic, registry.TierSonnet},
	}

	for _, rung := range ladder {
		if !ready.ReadyFor(rung.provider) {
			continue
		}
		fb := decisionFor(rung.tier, "provider-unavailable-fallback-"+string(d.Provider), d.ComplexityScore)
		return fb, nil
	}

	return Decision{}, &ErrNoProvidersReady{}
}
