package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	configx "github.com/tiles-ai/tiles-planner/pkg/config"
	docrenderx "github.com/tiles-ai/tiles-planner/pkg/docrender"
	eventsx "github.com/tiles-ai/tiles-planner/pkg/events"
	_ "github.com/tiles-ai/tiles-planner/pkg/logger/autoload"
	qloox "github.com/tiles-ai/tiles-planner/pkg/qloo"
	unsplashx "github.com/tiles-ai/tiles-planner/pkg/unsplash"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/dispatch"
	extractx "github.com/tiles-ai/tiles-planner/planner/extract"
	memoryx "github.com/tiles-ai/tiles-planner/planner/memory"
	"github.com/tiles-ai/tiles-planner/planner/orchestrator"
	promptx "github.com/tiles-ai/tiles-planner/planner/prompt"
	"github.com/tiles-ai/tiles-planner/planner/providers"
	"github.com/tiles-ai/tiles-planner/planner/readiness"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

type AppConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" split_words:"true" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"15s"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("TILES")

	store := newSessionStore()
	memStore := newMemoryStore(ctx)

	prompts := promptx.LoadPromptSet()
	extractorCfg := configx.MustNew[extractx.Config]("EXTRACTOR")
	extractor, err := extractx.New(ctx, *extractorCfg, prompts.Extractor)
	if err != nil {
		log.Fatal().Err(err).Msg("init extractor")
	}

	dispatchCfg := configx.MustNew[dispatch.Config]("DISPATCH")
	dispatcher := dispatch.New(newProviders(), *dispatchCfg)

	opts := []orchestrator.Option{}
	if exporter := newDocumentExporter(); exporter != nil {
		opts = append(opts, orchestrator.WithDocumentExporter(exporter))
	}
	if publisher := newPublisher(); publisher != nil {
		defer publisher.Close()
		opts = append(opts, orchestrator.WithPublisher(publisher))
	}

	orch, err := orchestrator.New(store, extractor, readiness.New(), dispatcher, memStore, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("init orchestrator")
	}

	router := newRouter(appCfg, orch)
	server := &http.Server{
		Addr:              appCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", appCfg.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, appCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

// newSessionStore prefers Upstash Redis and falls back to process memory
// when no Redis is configured.
func newSessionStore() statex.Store {
	cfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if err == nil && strings.TrimSpace(cfg.URL) != "" {
		store, err := statex.NewUpstashRedisStore(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init redis session store")
		}
		log.Info().Msg("session store: upstash redis")
		return store
	}
	log.Warn().Msg("session store: in-memory, sessions will not survive restarts")
	return statex.NewMemStore()
}

func newMemoryStore(ctx context.Context) contractx.MemoryStore {
	cfg, err := configx.New[memoryx.PostgresConfig]("POSTGRES")
	if err == nil && strings.TrimSpace(cfg.DSN) != "" {
		store, err := memoryx.NewBunStore(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init postgres memory store")
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure memory schema")
		}
		log.Info().Msg("memory store: postgres")
		return store
	}
	log.Warn().Msg("memory store: in-memory")
	return memoryx.NewInMemoryStore()
}

func newProviders() dispatch.Providers {
	var p dispatch.Providers

	if cfg, err := configx.New[providers.OpenAIImageConfig]("OPENAI_IMAGE"); err == nil && strings.TrimSpace(cfg.APIKey) != "" {
		imageProvider, err := providers.NewOpenAIImageProvider(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init image provider")
		}
		p.Image = imageProvider
	} else if cfg, err := configx.New[unsplashx.Config]("UNSPLASH"); err == nil && strings.TrimSpace(cfg.AccessKey) != "" {
		client, err := unsplashx.NewClient(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init unsplash client")
		}
		p.Image = providers.NewUnsplashImageProvider(client)
		log.Info().Msg("image provider: unsplash stock photos")
	}

	if cfg, err := configx.New[qloox.Config]("QLOO"); err == nil && strings.TrimSpace(cfg.APIKey) != "" {
		client, err := qloox.NewClient(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init qloo client")
		}
		p.Music = providers.NewQlooMusicProvider(client)
		p.Venue = providers.NewQlooVenueProvider(client)
		p.Food = providers.NewQlooFoodProvider(client)
	}

	return p
}

func newDocumentExporter() contractx.DocumentExporter {
	cfg, err := configx.New[docrenderx.Config]("DOCRENDER")
	if err != nil || strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	client, err := docrenderx.NewClient(*cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init docrender client")
	}
	return client
}

func newPublisher() *eventsx.NATSPublisher {
	cfg, err := configx.New[eventsx.Config]("NATS")
	if err != nil || strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	publisher, err := eventsx.Connect(*cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect nats")
	}
	return publisher
}

func newRouter(cfg *AppConfig, orch *orchestrator.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/turn", handleTurn(orch))
	r.Get("/api/sessions/{sessionID}/gallery", handleGallery(orch))
	r.Post("/api/sessions/{sessionID}/archive", handleArchive(orch))
	r.Get("/api/memory/{userID}", handleMemoryHistory(orch))
	r.Get("/api/memory/{userID}/{sessionID}", handleMemory(orch))

	return r
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
}

func handleTurn(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		env, err := orch.HandleTurn(r.Context(), req.SessionID, req.UserID, req.Text)
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrInvalidSession),
				errors.Is(err, orchestrator.ErrInvalidUser),
				errors.Is(err, orchestrator.ErrInvalidMessage):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, statex.ErrSessionArchived):
				writeError(w, http.StatusConflict, "session is archived")
			default:
				log.Error().Err(err).Msg("turn failed")
				writeError(w, http.StatusInternalServerError, "turn failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, env)
	}
}

// handleGallery serves the cached generated content for a session, including
// results that arrived after their originating turn returned.
func handleGallery(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		st, err := orch.Session(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, statex.ErrStateNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			log.Error().Err(err).Msg("gallery load failed")
			writeError(w, http.StatusInternalServerError, "gallery load failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": st.SessionID,
			"stage":      st.Stage,
			"content":    st.CachedContent,
		})
	}
}

func handleArchive(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if err := orch.Archive(r.Context(), sessionID); err != nil {
			if errors.Is(err, statex.ErrStateNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			log.Error().Err(err).Msg("archive failed")
			writeError(w, http.StatusInternalServerError, "archive failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
	}
}

func handleMemory(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		sessionID := chi.URLParam(r, "sessionID")
		rec, err := orch.Memory(r.Context(), userID, sessionID)
		if err != nil {
			log.Error().Err(err).Msg("memory load failed")
			writeError(w, http.StatusInternalServerError, "memory load failed")
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "no memory for session")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleMemoryHistory lists a user's memory records across sessions,
// newest first.
func handleMemoryHistory(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		records, err := orch.MemoryHistory(r.Context(), userID, limit)
		if err != nil {
			if errors.Is(err, contractx.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).Msg("memory history load failed")
			writeError(w, http.StatusInternalServerError, "memory history load failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": userID,
			"records": records,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
