// Package config loads the orchestrator's configuration from the process
// environment. Every sub-struct follows the teacher's "zero value is a
// valid, disabled configuration" rule: a missing API key disables the
// corresponding provider or tool instead of panicking.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig is the shared shape for every remote model provider.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Enabled reports whether this provider has credentials configured.
func (p ProviderConfig) Enabled() bool { return strings.TrimSpace(p.APIKey) != "" }

// LocalProviderConfig configures Provider E, the local model server.
type LocalProviderConfig struct {
	BaseURL   string
	Model     string
	KeepAlive string
	Timeout   time.Duration
}

func (p LocalProviderConfig) Enabled() bool { return strings.TrimSpace(p.BaseURL) != "" }

// SearchConfig holds API keys for the registered search engines.
type SearchConfig struct {
	BraveAPIKey  string
	SerperAPIKey string
}

// WeatherConfig holds the personal-weather-station and OpenWeatherMap
// credentials consumed by the weather tools.
type WeatherConfig struct {
	PWSToken     string
	PWSStationID string
	OWMAPIKey    string
}

// GeoConfig holds the What3Words credentials consumed by the geo tool.
type GeoConfig struct {
	W3WAPIKey string
}

// StoreConfig configures the conversation store backend.
type StoreConfig struct {
	PostgresDSN string
}

// RedisConfig configures the optional Redis mirror for the Router's
// UsageCounter (§9 DOMAIN STACK), so multi-process deployments share
// routing telemetry instead of each process keeping its own counters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// ObsConfig configures OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// ConcurrencyConfig controls the orchestrator's backpressure and loop
// bounds (§5, §4.5).
type ConcurrencyConfig struct {
	GlobalSemaphore int
	MaxToolSteps    int
}

// TimeoutConfig holds the per-call timeouts from §5.
type TimeoutConfig struct {
	RouterLLM     time.Duration
	SearchEngine  time.Duration
	QualityRating time.Duration
	Provider      time.Duration
	LocalProvider time.Duration
	Geocoding     time.Duration
}

// Config is the fully-resolved process configuration.
type Config struct {
	LogLevel string
	LogPath  string
	// LogPayloads enables debug-level logging of redacted prompt/response
	// payloads (internal/llm.ConfigureLogging); off by default since
	// prompts carry UserProfile PII via the system-prompt context block.
	LogPayloads     bool
	LogTruncateByte int

	HTTPAddr string

	Gemini    ProviderConfig
	Anthropic ProviderConfig
	OpenAI    ProviderConfig
	XAI       ProviderConfig
	Local     LocalProviderConfig

	// Decision is the small, low-temperature model used by the Router,
	// Context Analyzer, and Search Manager quality rater (§9 glossary:
	// "decision model").
	Decision ProviderConfig

	Search   SearchConfig
	Weather  WeatherConfig
	Geo      GeoConfig
	Store    StoreConfig
	Redis    RedisConfig
	Obs      ObsConfig
	Limits   ConcurrencyConfig
	Timeouts TimeoutConfig
}

// Load reads .env (if present) via godotenv.Overload and then resolves every
// field from the environment. Missing keys leave the corresponding
// sub-struct at its zero value rather than failing.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		LogLevel:        firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:         os.Getenv("LOG_PATH"),
		LogPayloads:     strings.EqualFold(os.Getenv("LOG_PAYLOADS"), "true"),
		LogTruncateByte: envInt("LOG_TRUNCATE_BYTES", 2048),

		HTTPAddr: firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),

		Gemini: ProviderConfig{
			APIKey:  os.Getenv("GOOGLE_LLM_API_KEY"),
			Model:   firstNonEmpty(os.Getenv("GOOGLE_LLM_MODEL"), "gemini-2.5-flash"),
			BaseURL: os.Getenv("GOOGLE_LLM_BASE_URL"),
			Timeout: envDuration("GOOGLE_LLM_TIMEOUT_SECONDS", 60*time.Second),
		},
		Anthropic: ProviderConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			Model:   firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), "claude-sonnet-4-5"),
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			Timeout: envDuration("ANTHROPIC_TIMEOUT_SECONDS", 60*time.Second),
		},
		OpenAI: ProviderConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-4o"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Timeout: envDuration("OPENAI_TIMEOUT_SECONDS", 60*time.Second),
		},
		XAI: ProviderConfig{
			APIKey:  os.Getenv("XAI_API_KEY"),
			Model:   firstNonEmpty(os.Getenv("XAI_MODEL"), "grok-4"),
			BaseURL: firstNonEmpty(os.Getenv("XAI_BASE_URL"), "https://api.x.ai/v1"),
			Timeout: envDuration("XAI_TIMEOUT_SECONDS", 60*time.Second),
		},
		Local: LocalProviderConfig{
			BaseURL:   os.Getenv("LOCAL_SERVER_BASE_URL"),
			Model:     os.Getenv("LOCAL_SERVER_MODEL"),
			KeepAlive: firstNonEmpty(os.Getenv("LOCAL_SERVER_KEEP_ALIVE"), "5m"),
			Timeout:   envDuration("LOCAL_SERVER_TIMEOUT_SECONDS", 120*time.Second),
		},
		Decision: ProviderConfig{
			APIKey:  firstNonEmpty(os.Getenv("DECISION_MODEL_API_KEY"), os.Getenv("GOOGLE_LLM_API_KEY")),
			Model:   firstNonEmpty(os.Getenv("DECISION_MODEL"), "gemini-2.5-flash-lite"),
			BaseURL: os.Getenv("DECISION_MODEL_BASE_URL"),
			Timeout: envDuration("DECISION_MODEL_TIMEOUT_SECONDS", 10*time.Second),
		},

		Search: SearchConfig{
			BraveAPIKey:  os.Getenv("BRAVE_API_KEY"),
			SerperAPIKey: os.Getenv("SERPER_API_KEY"),
		},
		Weather: WeatherConfig{
			PWSToken:     os.Getenv("PWS_TOKEN"),
			PWSStationID: os.Getenv("PWS_STATION_ID"),
			OWMAPIKey:    os.Getenv("OWM_API_KEY"),
		},
		Geo: GeoConfig{
			W3WAPIKey: os.Getenv("W3W_API_KEY"),
		},
		Store: StoreConfig{
			PostgresDSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Obs: ObsConfig{
			ServiceName:    firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "turncore"),
			ServiceVersion: os.Getenv("SERVICE_VERSION"),
			Environment:    firstNonEmpty(os.Getenv("ENVIRONMENT"), "dev"),
			OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		Limits: ConcurrencyConfig{
			GlobalSemaphore: envInt("GLOBAL_SEMAPHORE", 5),
			MaxToolSteps:    envInt("MAX_TOOL_STEPS", 3),
		},
		Timeouts: TimeoutConfig{
			RouterLLM:     envDuration("ROUTER_LLM_TIMEOUT_SECONDS", 10*time.Second),
			SearchEngine:  envDuration("SEARCH_ENGINE_TIMEOUT_SECONDS", 30*time.Second),
			QualityRating: envDuration("QUALITY_RATING_TIMEOUT_SECONDS", 10*time.Second),
			Provider:      envDuration("PROVIDER_TIMEOUT_SECONDS", 60*time.Second),
			LocalProvider: envDuration("LOCAL_PROVIDER_TIMEOUT_SECONDS", 120*time.Second),
			Geocoding:     envDuration("GEOCODING_TIMEOUT_SECONDS", 10*time.Second),
		},
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
