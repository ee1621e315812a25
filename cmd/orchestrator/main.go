// Command orchestrator runs the Request Orchestration Core as a standalone
// HTTP service: one process owning the Tool Registry, Search Manager,
// Router, Context Analyzer, every configured model Provider, and the Turn
// Orchestrator that ties them together (§4.6). Grounded on the teacher's
// cmd/agentd/main.go: godotenv -> logger -> config -> otel -> http client ->
// registry/tool registration -> engine construction -> http.ServeMux ->
// ListenAndServe.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"turncore/internal/config"
	"turncore/internal/contextanalyzer"
	"turncore/internal/decision"
	llmpkg "turncore/internal/llm"
	"turncore/internal/llm/anthropic"
	"turncore/internal/llm/gemini"
	"turncore/internal/llm/local"
	"turncore/internal/llm/openai"
	"turncore/internal/observability"
	"turncore/internal/orchestrator"
	"turncore/internal/router"
	"turncore/internal/search"
	"turncore/internal/store"
	"turncore/internal/store/memory"
	"turncore/internal/store/postgres"
	"turncore/internal/tools"
	"turncore/internal/tools/geo"
	searchtools "turncore/internal/tools/search"
	"turncore/internal/tools/weather"
	"turncore/internal/version"
)

func main() {
	// Load environment from .env before anything reads it, matching the
	// teacher's fallback-to-example.env convention.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel, cfg.Obs.ServiceName)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	llmpkg.ConfigureLogging(cfg.LogPayloads, cfg.LogTruncateByte)
	httpClient := observability.NewHTTPClient(nil)

	registry := tools.NewRegistry()
	registerTools(registry, cfg, httpClient)
	registry = tools.NewRecordingRegistry(registry, logToolDispatch)

	decisionClient, err := buildDecisionClient(cfg, httpClient)
	if err != nil {
		log.Warn().Err(err).Msg("decision client unavailable, routing/search/context-analysis fall back to rule-based paths")
	}

	usage := router.NewUsageCounter()
	mirror, err := router.NewRedisMirror(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis usage mirror unavailable, continuing without it")
		mirror = nil
	}

	r := router.New(decisionClient, registry, usage, mirror, cfg.Timeouts.RouterLLM)
	sm := search.New(registry, decisionClient, cfg.Timeouts.QualityRating, search.DefaultMaxAttempts, search.DefaultQualityThreshold)
	ca := contextanalyzer.New(decisionClient, cfg.Timeouts.RouterLLM)

	providers := buildProviders(cfg, httpClient, registry)

	conversations, err := buildConversationStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation store")
	}
	if err := conversations.Init(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run conversation store init")
	}

	models := memory.NewModelStore(defaultModels(cfg)...)
	prompts := memory.NewPromptStore(store.Prompt{Name: "default", Content: ""})
	profiles := memory.NewProfileStore(store.UserProfile{})

	orch := orchestrator.New(conversations, models, prompts, profiles, r, sm, ca, decisionClient, registry, providers, cfg.Limits.GlobalSemaphore)

	mux := buildMux(orch, conversations)

	log.Info().Str("addr", cfg.HTTPAddr).Str("version", version.Version).Msg("orchestrator listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// registerTools wires every built-in tool whose credentials are configured
// (§4.1). A tool with no credentials is simply left unregistered: the Router
// and RuleFallback both degrade gracefully when a named tool is absent from
// the registry's catalog.
func registerTools(registry tools.Registry, cfg config.Config, httpClient *http.Client) {
	if cfg.Search.BraveAPIKey != "" {
		must(registry.Register(&searchtools.BraveTool{APIKey: cfg.Search.BraveAPIKey, Client: httpClient}, false))
	}
	if cfg.Search.SerperAPIKey != "" {
		must(registry.Register(&searchtools.SerperTool{APIKey: cfg.Search.SerperAPIKey, Client: httpClient}, false))
	}
	if cfg.Geo.W3WAPIKey != "" {
		must(registry.Register(&geo.What3WordsTool{APIKey: cfg.Geo.W3WAPIKey, Client: httpClient}, false))
	}
	must(registry.Register(&weather.ForecastTool{Client: httpClient}, false))
	if cfg.Weather.PWSToken != "" && cfg.Weather.PWSStationID != "" {
		must(registry.Register(weather.NewCurrentConditionsTool("", cfg.Weather.PWSToken, cfg.Weather.PWSStationID, httpClient), false))
		must(registry.Register(weather.NewHomeWeatherTool("", cfg.Weather.PWSToken, cfg.Weather.PWSStationID, httpClient), false))
	}
}

// logToolDispatch reports every tool dispatch at debug level, regardless of
// which provider's agentic loop triggered it.
func logToolDispatch(ev tools.DispatchEvent) {
	evt := log.Debug().Str("tool", ev.Name)
	if ev.Err != nil {
		evt = log.Warn().Str("tool", ev.Name).Err(ev.Err)
	}
	evt.Msg("tool_dispatch")
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("tool registration failed")
	}
}

// buildDecisionClient builds the shared low-temperature client used by the
// Router, Context Analyzer, and Search Manager (§9 GLOSSARY "decision
// model"). A nil Client (and nil error) is returned when no decision-model
// credentials are configured; every caller in this module tolerates a nil
// Client by falling back to its rule-based path.
func buildDecisionClient(cfg config.Config, httpClient *http.Client) (decision.Client, error) {
	if !cfg.Decision.Enabled() {
		return nil, nil
	}
	c, err := decision.New(cfg.Decision, httpClient)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// buildProviders constructs every configured model Provider (§4.5). Gemini,
// OpenAI, and the local server carry the shared agentic tool loop; Anthropic
// does not (§4.5's explicit "no agentic loop" note for Provider B). xAI is
// wired through the OpenAI adapter against its OpenAI-compatible endpoint,
// since this module has no bespoke xAI wire client.
func buildProviders(cfg config.Config, httpClient *http.Client, registry tools.Registry) orchestrator.Providers {
	providers := orchestrator.Providers{}

	if cfg.Gemini.Enabled() {
		c, err := gemini.New(cfg.Gemini, httpClient, registry, cfg.Limits.MaxToolSteps)
		if err != nil {
			log.Warn().Err(err).Msg("gemini provider unavailable")
		} else {
			providers["gemini"] = c
		}
	}
	if cfg.Anthropic.Enabled() {
		providers["anthropic"] = anthropic.New(cfg.Anthropic, httpClient)
	}
	if cfg.OpenAI.Enabled() {
		providers["openai"] = openai.New(cfg.OpenAI, httpClient, registry, cfg.Limits.MaxToolSteps)
	}
	if cfg.XAI.Enabled() {
		providers["xai"] = openai.New(cfg.XAI, httpClient, registry, cfg.Limits.MaxToolSteps)
	}
	if cfg.Local.Enabled() {
		providers["local"] = local.New(cfg.Local, httpClient, registry, cfg.Limits.MaxToolSteps)
	}
	return providers
}

// defaultModels seeds the in-memory ModelStore with one entry per
// configured provider, so a Conversation created without an explicit
// ModelID has somewhere to resolve to. Model administration (editing these
// entries at runtime) is out of this module's scope (spec.md §1 Non-goals).
func defaultModels(cfg config.Config) []store.Model {
	var out []store.Model
	add := func(provider, name string) {
		if name == "" {
			return
		}
		out = append(out, store.Model{Name: name, Provider: provider, SupportsText: true, SupportsTools: provider != "anthropic"})
	}
	add("gemini", cfg.Gemini.Model)
	add("anthropic", cfg.Anthropic.Model)
	add("openai", cfg.OpenAI.Model)
	add("xai", cfg.XAI.Model)
	add("local", cfg.Local.Model)
	return out
}

// buildConversationStore picks the Postgres-backed store when a DSN is
// configured and falls back to the in-memory store otherwise (§3, §6).
func buildConversationStore(cfg config.Config) (store.ConversationStore, error) {
	if cfg.Store.PostgresDSN == "" {
		return memory.NewConversationStore(), nil
	}
	pool, err := postgres.OpenPool(context.Background(), cfg.Store.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return postgres.NewConversationStore(pool), nil
}

// buildMux assembles the HTTP surface (§6 External Interfaces): health
// checks plus conversation creation and turn submission, mirroring the
// teacher's /healthz, /readyz, /agent/run shape.
func buildMux(orch *orchestrator.Orchestrator, conversations store.ConversationStore) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok " + version.Version))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ready"))
	})

	mux.HandleFunc("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			DisplayName string `json:"display_name"`
			ModelID     string `json:"model_id"`
			PromptID    string `json:"prompt_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		conv, err := conversations.CreateConversation(r.Context(), req.DisplayName, req.ModelID, req.PromptID)
		if err != nil {
			log.Error().Err(err).Msg("create conversation failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, conv)
	})

	mux.HandleFunc("/v1/conversations/", func(w http.ResponseWriter, r *http.Request) {
		id, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/v1/conversations/"), "/turns")
		if !ok || id == "" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Utterance string `json:"utterance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		result, err := orch.RunTurn(ctx, id, req.Utterance)
		if err != nil {
			log.Error().Err(err).Str("conversation_id", id).Msg("turn failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
