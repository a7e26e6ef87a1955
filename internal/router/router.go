package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/handlers"
	"github.com/prismgw/prism/internal/middleware"
	"github.com/prismgw/prism/internal/services/ratelimit"
)

// Deps is everything the HTTP surface needs, built once at start-up.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Chat    *handlers.ChatHandler
	Health  *handlers.HealthHandler
	Models  *handlers.ModelsHandler
	Auth    *middleware.AuthMiddleware
	Limiter ratelimit.Limiter
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Router-Model", "X-Router-Model-Id", "X-Provider", "X-Model-Override", "X-Router-Rationale", "X-Complexity-Score", "X-Gemini-Thinking-Level", "X-Memory-Hits", "X-Memory-Tokens", "X-Cost-Estimate-USD", "X-Cost-Pricing-Version", "X-Debate-Mode", "X-Debate-Profile", "X-Debate-Trigger", "X-Debate-Model", "X-Debate-Cost-Note", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDHeader)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.Metrics)

	r.Get("/health", d.Health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(d.Auth.Authenticate)
		if d.Config.RateLimit.Enabled && d.Limiter != nil {
			v1.Use(middleware.RateLimit(d.Limiter, d.Config.RateLimit.RPM, d.Logger))
		}

		v1.Post("/chat/stream", d.Chat.Stream)
		v1.Get("/models", d.Models.List)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "unknown route", "type": "not_found"},
		})
	})

	return r
}

// requestIDHeader reflects the chi request id back to the client.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}
