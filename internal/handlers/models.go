package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/routing"
)

type modelInfo struct {
	Tier            string `json:"tier"`
	Provider        string `json:"provider"`
	ProviderModelID string `json:"provider_model_id"`
	BudgetCap       int    `json:"budget_cap"`
	SupportsImages  bool   `json:"supports_images"`
	Available       bool   `json:"available"`
}

type ModelsHandler struct {
	readiness routing.Readiness
}

func NewModelsHandler(readiness routing.Readiness) *ModelsHandler {
	return &ModelsHandler{readiness: readiness}
}

// List returns the model registry with per-tier availability.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers := registry.Tiers()
	out := make([]modelInfo, 0, len(tiers))
	for _, tier := range tiers {
		entry := registry.MustLookup(tier)
		out = append(out, modelInfo{
			Tier:            string(tier),
			Provider:        string(entry.Provider),
			ProviderModelID: entry.ProviderModelID,
			BudgetCap:       entry.BudgetCap,
			SupportsImages:  entry.SupportsImages,
			Available:       h.readiness.ReadyFor(entry.Provider),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"models": out})
}
