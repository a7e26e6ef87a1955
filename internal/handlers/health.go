package handlers

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"github.com/prismgw/prism/internal/database"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/routing"
)

type HealthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]bool   `json:"providers"`
	Services  map[string]string `json:"services"`
}

type HealthHandler struct {
	db        *gorm.DB
	readiness routing.Readiness
}

func NewHealthHandler(db *gorm.DB, readiness routing.Readiness) *HealthHandler {
	return &HealthHandler{db: db, readiness: readiness}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Providers: make(map[string]bool),
		Services:  make(map[string]string),
	}

	for _, p := range []registry.Provider{registry.ProviderAnthropic, registry.ProviderOpenAI, registry.ProviderGoogle} {
		response.Providers[string(p)] = h.readiness.ReadyFor(p)
	}
	if !h.readiness.AnyReady() {
		response.Status = "degraded"
	}

	if h.db == nil {
		response.Services["database"] = "disabled"
	} else if database.IsHealthy(h.db) {
		response.Services["database"] = "healthy"
	} else {
		response.Services["database"] = "unhealthy"
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status == "ok" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}
