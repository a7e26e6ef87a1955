// Package debate implements the bounded challenger fan-out: a small set
// of cheap secondary models critique the request in parallel, and the
// primary model synthesizes a final answer from their notes.
package debate

import (
	"fmt"

	"github.com/prismgw/prism/internal/services/registry"
)

// Profile is the closed set of debate configurations. Unrecognized input
// never becomes a Profile; it falls through to "no debate".
type Profile string

const (
	ProfileGeneral Profile = "general"
	ProfileCode    Profile = "code"
	ProfileVideoUI Profile = "video_ui"
)

// ParseProfile maps a request string onto the closed profile set.
func ParseProfile(s string) (Profile, bool) {
	switch Profile(s) {
	case ProfileGeneral, ProfileCode, ProfileVideoUI:
		return Profile(s), true
	}
	return "", false
}

// Challenger is one secondary model invocation in a plan.
type Challenger struct {
	Role string
	Tier registry.Tier
}

// Plan is the resolved debate configuration for one request.
type Plan struct {
	Profile            Profile
	Challengers        []Challenger
	MaxChallengerChars int
}

// Output is one challenger's completed critique, clamped to the plan's
// character bound.
type Output struct {
	Role string
	Tier registry.Tier
	Text string
}

// GetPlan builds the challenger lineup for a profile. For general and
// code profiles any challenger sharing the primary's tier is dropped; the
// video_ui lineup is all Google models and keeps its full cast. The
// ladder argument optionally overrides the video_ui tiers.
func GetPlan(profile Profile, primaryTier registry.Tier, videoLadder []registry.Tier) Plan {
	switch profile {
	case ProfileGeneral:
		return Plan{
			Profile: ProfileGeneral,
			Challengers: trimPrimary(dedupe([]Challenger{
				{Role: "skeptic", Tier: registry.TierGPTMini},
				{Role: "synthesist", Tier: registry.TierGeminiFlash},
			}), primaryTier, 2),
			MaxChallengerChars: 2000,
		}
	case ProfileCode:
		return Plan{
			Profile: ProfileCode,
			Challengers: trimPrimary(dedupe([]Challenger{
				{Role: "critic", Tier: registry.TierGPTMini},
				{Role: "implementer", Tier: registry.TierHaiku},
			}), primaryTier, 2),
			MaxChallengerChars: 2400,
		}
	case ProfileVideoUI:
		roles := []string{"UI Designer Critic", "Product QA/UX", "Customer Persona"}
		challengers := make([]Challenger, 0, len(roles))
		for i, role := range roles {
			tier := registry.TierGeminiPro
			if i < len(videoLadder) && isGoogleTier(videoLadder[i]) {
				tier = videoLadder[i]
			}
			challengers = append(challengers, Challenger{Role: role, Tier: tier})
		}
		return Plan{
			Profile:            ProfileVideoUI,
			Challengers:        dedupe(challengers),
			MaxChallengerChars: 1800,
		}
	}
	return Plan{}
}

// EligibilityError explains why a debate request was refused.
type EligibilityError struct {
	Profile Profile
	Reason  string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("debate profile %s not eligible: %s", e.Profile, e.Reason)
}

// CheckEligibility applies the per-profile media gates. The explicit flag
// distinguishes client-requested debate from the auto trigger; video_ui
// never auto-triggers.
func CheckEligibility(profile Profile, hasImages, hasVideo, explicit bool) error {
	switch profile {
	case ProfileGeneral, ProfileCode:
		if hasImages || hasVideo {
			return &EligibilityError{Profile: profile, Reason: "media attachments are not supported"}
		}
	case ProfileVideoUI:
		if !explicit {
			return &EligibilityError{Profile: profile, Reason: "explicit request required"}
		}
		if !hasVideo {
			return &EligibilityError{Profile: profile, Reason: "a ready video asset is required"}
		}
		if hasImages {
			return &EligibilityError{Profile: profile, Reason: "image attachments are not supported"}
		}
	default:
		return &EligibilityError{Profile: profile, Reason: "unknown profile"}
	}
	return nil
}

func dedupe(challengers []Challenger) []Challenger {
	type key struct {
		role string
		tier registry.Tier
	}
	seen := make(map[key]struct{}, len(challengers))
	out := challengers[:0]
	for _, c := range challengers {
		k := key{c.Role, c.Tier}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

func trimPrimary(challengers []Challenger, primaryTier registry.Tier, cap int) []Challenger {
	out := make([]Challenger, 0, len(challengers))
	for _, c := range challengers {
		if c.Tier == primaryTier {
			continue
		}
		out = append(out, c)
		if len(out) == cap {
			break
		}
	}
	return out
}

func isGoogleTier(tier registry.Tier) bool {
	entry, err := registry.Lookup(tier)
	return err == nil && entry.Provider == registry.ProviderGoogle
}
