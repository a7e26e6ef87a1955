package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismgw/prism/internal/services/registry"
)

func TestParseProfile(t *testing.T) {
	for _, valid := range []string{"general", "code", "video_ui"} {
		p, ok := ParseProfile(valid)
		assert.True(t, ok)
		assert.Equal(t, Profile(valid), p)
	}

	_, ok := ParseProfile("adversarial")
	assert.False(t, ok)
	_, ok = ParseProfile("")
	assert.False(t, ok)
}

func TestGetPlanGeneral(t *testing.T) {
	plan := GetPlan(ProfileGeneral, registry.TierOpus, nil)
	require.Len(t, plan.Challengers, 2)
	assert.Equal(t, "skeptic", plan.Challengers[0].Role)
	assert.Equal(t, registry.TierGPTMini, plan.Challengers[0].Tier)
	assert.Equal(t, "synthesist", plan.Challengers[1].Role)
	assert.Equal(t, 2000, plan.MaxChallengerChars)
}

func TestGetPlanDropsPrimaryTier(t *testing.T) {
	plan := GetPlan(ProfileGeneral, registry.TierGPTMini, nil)
	require.Len(t, plan.Challengers, 1)
	assert.Equal(t, registry.TierGeminiFlash, plan.Challengers[0].Tier)

	plan = GetPlan(ProfileCode, registry.TierHaiku, nil)
	require.Len(t, plan.Challengers, 1)
	assert.Equal(t, registry.TierGPTMini, plan.Challengers[0].Tier)

	for _, c := range GetPlan(ProfileCode, registry.TierSonnet, nil).Challengers {
		assert.NotEqual(t, registry.TierSonnet, c.Tier)
	}
}

func TestGetPlanVideoUI(t *testing.T) {
	plan := GetPlan(ProfileVideoUI, registry.TierGeminiPro, nil)
	require.Len(t, plan.Challengers, 3)
	for _, c := range plan.Challengers {
		entry := registry.MustLookup(c.Tier)
		assert.Equal(t, registry.ProviderGoogle, entry.Provider)
	}
	assert.Equal(t, 1800, plan.MaxChallengerChars)
}

func TestGetPlanVideoUILadderOverride(t *testing.T) {
	ladder := []registry.Tier{registry.TierGeminiFlash, registry.TierGeminiPro, registry.TierGeminiFlash}
	plan := GetPlan(ProfileVideoUI, registry.TierGeminiPro, ladder)
	require.Len(t, plan.Challengers, 3)
	assert.Equal(t, registry.TierGeminiFlash, plan.Challengers[0].Tier)

	// Non-Google ladder entries are ignored.
	plan = GetPlan(ProfileVideoUI, registry.TierGeminiPro, []registry.Tier{registry.TierOpus})
	assert.Equal(t, registry.TierGeminiPro, plan.Challengers[0].Tier)
}

func TestCheckEligibility(t *testing.T) {
	assert.NoError(t, CheckEligibility(ProfileGeneral, false, false, true))
	assert.Error(t, CheckEligibility(ProfileGeneral, true, false, true))
	assert.Error(t, CheckEligibility(ProfileCode, false, true, true))

	assert.NoError(t, CheckEligibility(ProfileVideoUI, false, true, true))
	assert.Error(t, CheckEligibility(ProfileVideoUI, false, true, false)) // explicit only
	assert.Error(t, CheckEligibility(ProfileVideoUI, false, false, true))
	assert.Error(t, CheckEligibility(ProfileVideoUI, true, true, true))
}
