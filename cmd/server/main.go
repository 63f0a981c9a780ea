package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casefileai/case-gateway/internal/ai"
	"github.com/casefileai/case-gateway/internal/api"
	"github.com/casefileai/case-gateway/internal/config"
	"github.com/casefileai/case-gateway/internal/observability"
	"github.com/casefileai/case-gateway/internal/relay"
	"github.com/casefileai/case-gateway/internal/store"
	"github.com/casefileai/case-gateway/internal/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("store_driver", cfg.StoreDriver).
		Str("transcription_provider", cfg.TranscriptionProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Case Gateway Service starting")

	// Durable store
	var st store.Store
	switch cfg.StoreDriver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		st = pg
	case "memory":
		logger.Warn().Msg("Using in-memory store, data will not survive restarts")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	// Transcription provider
	provider, err := transcribe.NewProvider(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create transcription provider")
	}

	// Language-model analyzer, optional
	var analyzer ai.Analyzer
	if cfg.OpenAIAPIKey != "" {
		analyzer = ai.NewOpenAIAnalyzer(cfg)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set, analysis is disabled")
	}

	registry := relay.NewRegistry()
	manager := relay.NewManager(cfg, st, provider, analyzer, registry)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Mount("/", api.NewHandler(st, analyzer, cfg.MaxUploadBytes).Routes())
	r.Get("/ws", manager.Handler())
	r.Get("/health", observability.HealthCheckHandler())

	readinessChecks := map[string]observability.HealthCheckFunc{
		"store": func(ctx context.Context) (bool, error) {
			if err := st.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"transcription": func(ctx context.Context) (bool, error) {
			// Config-level check only, a real connect costs provider minutes
			if provider == nil {
				return false, fmt.Errorf("transcription provider not configured")
			}
			return true, nil
		},
	}
	if analyzer != nil {
		readinessChecks["language_model"] = func(ctx context.Context) (bool, error) {
			return true, nil
		}
	}
	r.Get("/ready", observability.ReadinessHandler(readinessChecks))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
