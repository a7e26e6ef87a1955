package routing

import (
	"strings"

	"github.com/prismgw/prism/internal/services/registry"
)

// Legacy tier strings still accepted from older clients.
var legacyAliases = map[string]registry.Tier{
	"sonnet-4.5":       registry.TierSonnet,
	"opus-4.5":         registry.TierOpus,
	"haiku-4":          registry.TierHaiku,
	"gpt-4o-mini":      registry.TierGPTMini,
	"gemini-2.5-flash": registry.TierGeminiFlash,
	"gemini-2.5-pro":   registry.TierGeminiPro,
}

// Natural-language fragments mapped to tiers. Longer fragments are listed
// first so "gemini pro" is not shadowed by "gemini".
var fragmentAliases = []struct {
	fragment string
	tier     registry.Tier
}{
	{"gemini 3.1 pro", registry.TierGeminiPro},
	{"gemini 3 flash", registry.TierGeminiFlash},
	{"gemini pro", registry.TierGeminiPro},
	{"gemini flash", registry.TierGeminiFlash},
	{"gpt mini", registry.TierGPTMini},
	{"gpt 5 mini", registry.TierGPTMini},
	{"opus", registry.TierOpus},
	{"sonnet", registry.TierSonnet},
	{"haiku", registry.TierHaiku},
	{"gemini", registry.TierGeminiFlash},
	{"gpt", registry.TierGPTMini},
}

// NormalizeOverride resolves a manual model override to a registry tier.
// Recognized inputs: exact tier keys, provider-qualified "provider:tier"
// forms, legacy aliases and loose natural-language fragments. Unknown
// input returns "" (no override) so routing proceeds automatically; this
// function never fails.
func NormalizeOverride(input string) registry.Tier {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" || s == "auto" {
		return ""
	}

	// Strip a provider qualifier: "anthropic:sonnet-4.6".
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}

	if registry.IsKnown(registry.Tier(s)) {
		return registry.Tier(s)
	}
	if tier, ok := legacyAliases[s]; ok {
		return tier
	}

	// Normalize separators so "gemini-3-flash please" and
	// "use gemini 3 flash" both match the fragment table.
	loose := strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(s)
	loose = strings.Join(strings.Fields(loose), " ")
	for _, f := range fragmentAliases {
		frag := strings.NewReplacer("-", " ", ".", " ").Replace(f.fragment)
		frag = strings.Join(strings.Fields(frag), " ")
		if strings.Contains(loose, frag) {
			return f.tier
		}
	}

	return ""
}
