package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/routing"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Logging   LoggingConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Providers ProvidersConfig
	Routing   RoutingConfig
	Debate    DebateConfig
}

type ServerConfig struct {
	Port             int
	MetricsPort      int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	GracefulShutdown time.Duration
	// FunctionTimeout is the overall per-request deadline.
	FunctionTimeout time.Duration
	MaxQueryChars   int
}

type DatabaseConfig struct {
	URL             string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	SecretKey string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Enabled bool
	RPM     int
}

// ProviderConfig carries the two readiness gates for one upstream vendor
// plus its endpoint override.
type ProviderConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
}

func (p ProviderConfig) Ready() bool {
	return p.Enabled && p.APIKey != ""
}

type ProvidersConfig struct {
	Anthropic ProviderConfig
	OpenAI    ProviderConfig
	Google    ProviderConfig
}

// Readiness maps the provider gates into the routing layer's gate table.
func (p ProvidersConfig) Readiness() routing.Readiness {
	return routing.Readiness{
		registry.ProviderAnthropic: {Enabled: p.Anthropic.Enabled, CredentialsPresent: p.Anthropic.APIKey != ""},
		registry.ProviderOpenAI:    {Enabled: p.OpenAI.Enabled, CredentialsPresent: p.OpenAI.APIKey != ""},
		registry.ProviderGoogle:    {Enabled: p.Google.Enabled, CredentialsPresent: p.Google.APIKey != ""},
	}
}

type RoutingConfig struct {
	DevMode bool
}

type DebateConfig struct {
	Enabled                bool
	AutoEnabled            bool
	ComplexityThreshold    int
	WorkerMaxTokensGeneral int
	WorkerMaxTokensCode    int
	WorkerMaxTokensVideoUI int
	VideoUIStageTimeout    time.Duration
	// VideoUIModelLadder optionally overrides the Google model list used
	// for video_ui challengers.
	VideoUIModelLadder []string
}

// Load reads configuration from the environment. Called once at start-up;
// nothing re-reads the environment after this returns.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	bindEnvVars(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:             v.GetInt("port"),
			MetricsPort:      v.GetInt("metrics_port"),
			ReadTimeout:      v.GetDuration("read_timeout"),
			WriteTimeout:     v.GetDuration("write_timeout"),
			IdleTimeout:      v.GetDuration("idle_timeout"),
			GracefulShutdown: v.GetDuration("graceful_shutdown_timeout"),
			FunctionTimeout:  time.Duration(v.GetInt("function_timeout_ms")) * time.Millisecond,
			MaxQueryChars:    v.GetInt("max_query_chars"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database_url"),
			MaxConnections:  v.GetInt("db_max_connections"),
			MaxIdleConns:    v.GetInt("db_max_idle_connections"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis_url"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt_secret"),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			OutputPath: v.GetString("log_output_path"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("rate_limit_enabled"),
			RPM:     v.GetInt("rate_limit_rpm"),
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{
				Enabled: v.GetBool("enable_anthropic"),
				APIKey:  v.GetString("anthropic_api_key"),
				BaseURL: v.GetString("anthropic_base_url"),
			},
			OpenAI: ProviderConfig{
				Enabled: v.GetBool("enable_openai"),
				APIKey:  v.GetString("openai_api_key"),
				BaseURL: v.GetString("openai_base_url"),
			},
			Google: ProviderConfig{
				Enabled: v.GetBool("enable_google"),
				APIKey:  v.GetString("google_api_key"),
				BaseURL: v.GetString("google_base_url"),
			},
		},
		Routing: RoutingConfig{
			DevMode: v.GetBool("dev_mode"),
		},
		Debate: DebateConfig{
			Enabled:                v.GetBool("enable_debate_mode"),
			AutoEnabled:            v.GetBool("enable_debate_auto"),
			ComplexityThreshold:    v.GetInt("debate_complexity_threshold"),
			WorkerMaxTokensGeneral: v.GetInt("debate_worker_max_tokens_general"),
			WorkerMaxTokensCode:    v.GetInt("debate_worker_max_tokens_code"),
			WorkerMaxTokensVideoUI: v.GetInt("debate_worker_max_tokens_video_ui"),
			VideoUIStageTimeout:    time.Duration(v.GetInt("debate_video_ui_stage_timeout_ms")) * time.Millisecond,
			VideoUIModelLadder:     splitList(v.GetString("debate_video_ui_model_ladder")),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("read_timeout", "30s")
	v.SetDefault("write_timeout", "120s")
	v.SetDefault("idle_timeout", "120s")
	v.SetDefault("graceful_shutdown_timeout", "15s")
	v.SetDefault("function_timeout_ms", 55_000)
	v.SetDefault("max_query_chars", 50_000)

	v.SetDefault("db_max_connections", 50)
	v.SetDefault("db_max_idle_connections", 10)
	v.SetDefault("db_conn_max_lifetime", "1h")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_output_path", "stdout")

	v.SetDefault("cors_allowed_origins", "*")

	v.SetDefault("rate_limit_enabled", false)
	v.SetDefault("rate_limit_rpm", 60)

	v.SetDefault("enable_anthropic", true)
	v.SetDefault("enable_openai", true)
	v.SetDefault("enable_google", true)

	v.SetDefault("dev_mode", false)

	v.SetDefault("enable_debate_mode", false)
	v.SetDefault("enable_debate_auto", false)
	v.SetDefault("debate_complexity_threshold", 85)
	v.SetDefault("debate_worker_max_tokens_general", 1200)
	v.SetDefault("debate_worker_max_tokens_code", 1500)
	v.SetDefault("debate_worker_max_tokens_video_ui", 1200)
	v.SetDefault("debate_video_ui_stage_timeout_ms", 20_000)
}

func bindEnvVars(v *viper.Viper) {
	binds := map[string]string{
		"port":                      "PORT",
		"metrics_port":              "METRICS_PORT",
		"graceful_shutdown_timeout": "GRACEFUL_SHUTDOWN_TIMEOUT",
		"function_timeout_ms":       "FUNCTION_TIMEOUT_MS",
		"database_url":              "DATABASE_URL",
		"redis_url":                 "REDIS_URL",
		"jwt_secret":                "JWT_SECRET",
		"log_level":                 "LOG_LEVEL",
		"log_format":                "LOG_FORMAT",
		"cors_allowed_origins":      "CORS_ALLOWED_ORIGINS",
		"rate_limit_enabled":        "RATE_LIMIT_ENABLED",
		"rate_limit_rpm":            "RATE_LIMIT_RPM",

		"anthropic_api_key":  "ANTHROPIC_API_KEY",
		"openai_api_key":     "OPENAI_API_KEY",
		"google_api_key":     "GOOGLE_API_KEY",
		"anthropic_base_url": "ANTHROPIC_BASE_URL",
		"openai_base_url":    "OPENAI_BASE_URL",
		"google_base_url":    "GOOGLE_BASE_URL",
		"enable_anthropic":   "ENABLE_ANTHROPIC",
		"enable_openai":      "ENABLE_OPENAI",
		"enable_google":      "ENABLE_GOOGLE",

		"dev_mode": "DEV_MODE",

		"enable_debate_mode":                "ENABLE_DEBATE_MODE",
		"enable_debate_auto":                "ENABLE_DEBATE_AUTO",
		"debate_complexity_threshold":       "DEBATE_COMPLEXITY_THRESHOLD",
		"debate_worker_max_tokens_general":  "DEBATE_WORKER_MAX_TOKENS_GENERAL",
		"debate_worker_max_tokens_code":     "DEBATE_WORKER_MAX_TOKENS_CODE",
		"debate_worker_max_tokens_video_ui": "DEBATE_WORKER_MAX_TOKENS_VIDEO_UI",
		"debate_video_ui_stage_timeout_ms":  "DEBATE_VIDEO_UI_STAGE_TIMEOUT_MS",
		"debate_video_ui_model_ladder":      "DEBATE_VIDEO_UI_MODEL_LADDER",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
