// Package server wires configuration, stores, adapters and the HTTP
// surface into a runnable gateway. Shared by the server binary and the
// CLI's serve subcommand.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/database"
	"github.com/prismgw/prism/internal/handlers"
	"github.com/prismgw/prism/internal/middleware"
	"github.com/prismgw/prism/internal/router"
	"github.com/prismgw/prism/internal/services/conversation"
	"github.com/prismgw/prism/internal/services/debate"
	"github.com/prismgw/prism/internal/services/memory"
	"github.com/prismgw/prism/internal/services/pricing"
	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/ratelimit"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/routing"
	"github.com/prismgw/prism/internal/services/tokenizer"
	"github.com/prismgw/prism/internal/services/video"
)

// Run builds the gateway from config and serves until SIGINT/SIGTERM.
func Run(cfg *config.Config, logger *zap.Logger) error {
	readiness := cfg.Providers.Readiness()
	if !readiness.AnyReady() {
		return fmt.Errorf("no upstream providers are ready; set at least one provider API key")
	}

	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}

	// Persistence is optional: without DATABASE_URL the gateway routes
	// and streams, with memory and message history degraded to no-ops.
	var db *gorm.DB
	if cfg.Database.URL != "" {
		db, err = database.Initialize(cfg.Database)
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
	} else {
		logger.Warn("running in lite mode: no DATABASE_URL, persistence and memory disabled")
	}

	estimator := tokenizer.NewEstimator()
	costs := pricing.NewEngine(estimator)
	engine := routing.NewEngine(estimator, logger, cfg.Routing.DevMode)
	orchestrator := debate.NewOrchestrator(adapters, cfg.Debate, logger)

	var (
		conversations conversation.Store
		retriever     *memory.Retriever
		summarizer    *memory.Summarizer
		videos        video.Store
	)
	if db != nil {
		conversations = conversation.NewStore(db)
		memStore := memory.NewStore(db)
		retriever = memory.NewRetriever(memStore, estimator, logger)
		summarizer = memory.NewSummarizer(memStore, summaryLadder(adapters), estimator, logger)
		videos = video.NewStore(db)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			client := redis.NewClient(opt)
			if err := client.Ping(context.Background()).Err(); err != nil {
				return fmt.Errorf("redis unavailable: %w", err)
			}
			limiter = ratelimit.NewRedisLimiter(client, logger)
		} else {
			logger.Warn("rate limiting enabled without REDIS_URL, using in-process limiter")
			limiter = ratelimit.NewMemoryLimiter()
		}
	}

	chat := handlers.NewChatHandler(handlers.ChatHandlerConfig{
		Logger:        logger,
		Config:        cfg,
		Engine:        engine,
		Estimator:     estimator,
		Costs:         costs,
		Adapters:      adapters,
		Readiness:     readiness,
		Conversations: conversations,
		Retriever:     retriever,
		Summarizer:    summarizer,
		Videos:        videos,
		Debates:       orchestrator,
	})

	handler := router.New(router.Deps{
		Config:  cfg,
		Logger:  logger,
		Chat:    chat,
		Health:  handlers.NewHealthHandler(db, readiness),
		Models:  handlers.NewModelsHandler(readiness),
		Auth:    middleware.NewAuthMiddleware(middleware.NewJWTValidator(cfg.JWT.SecretKey), logger),
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildAdapters(cfg *config.Config, logger *zap.Logger) (map[registry.Provider]providers.Adapter, error) {
	adapters := make(map[registry.Provider]providers.Adapter, 3)

	if cfg.Providers.Anthropic.Ready() {
		a, err := providers.NewAnthropicAdapter(providers.AnthropicConfig{
			APIKey:  cfg.Providers.Anthropic.APIKey,
			BaseURL: cfg.Providers.Anthropic.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		adapters[registry.ProviderAnthropic] = a
	}

	if cfg.Providers.OpenAI.Ready() {
		a, err := providers.NewOpenAIAdapter(providers.OpenAIConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		adapters[registry.ProviderOpenAI] = a
	}

	if cfg.Providers.Google.Ready() {
		a, err := providers.NewGoogleAdapter(providers.GoogleConfig{
			APIKey:  cfg.Providers.Google.APIKey,
			BaseURL: cfg.Providers.Google.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		adapters[registry.ProviderGoogle] = a
	}

	return adapters, nil
}

// summaryLadder orders the summarization fallback OpenAI, Anthropic,
// Google, keeping only the adapters that are actually configured.
func summaryLadder(adapters map[registry.Provider]providers.Adapter) []providers.Adapter {
	var ladder []providers.Adapter
	for _, p := range []registry.Provider{registry.ProviderOpenAI, registry.ProviderAnthropic, registry.ProviderGoogle} {
		if a, ok := adapters[p]; ok {
			ladder = append(ladder, a)
		}
	}
	return ladder
}
