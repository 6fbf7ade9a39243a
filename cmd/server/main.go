// Command server is the sentinel binary's entry point: it wires
// config → logging → storage → the domain packages → the worker
// supervisor and scheduler → the HTTP surface, then blocks for an OS
// signal and shuts everything down in reverse order.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/calibration"
	"github.com/archwatch/sentinel/internal/cluster"
	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/counterfactual"
	"github.com/archwatch/sentinel/internal/dedup"
	"github.com/archwatch/sentinel/internal/embed"
	"github.com/archwatch/sentinel/internal/evidence"
	"github.com/archwatch/sentinel/internal/httpapi"
	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/llmpolicy"
	"github.com/archwatch/sentinel/internal/logging"
	"github.com/archwatch/sentinel/internal/pipeline"
	"github.com/archwatch/sentinel/internal/queue"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/migrations"
	"github.com/archwatch/sentinel/internal/taxonomy"
	"github.com/archwatch/sentinel/internal/workers"
)

func main() {
	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: "+err.Error())
		os.Exit(1)
	}

	log := logging.New(cfg.Env, cfg.Server.LogLevel)
	log.Info().Str("env", string(cfg.Env)).Msg("sentinel starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage connect failed")
	}
	defer db.Close()

	if err := migrations.Run(ctx, db.Pool); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	if cfg.Env.IsProductionLike() {
		if err := migrations.CheckParity(ctx, db.Pool); err != nil {
			log.Fatal().Err(err).Msg("schema parity check failed")
		}
	}

	trends := storage.NewTrendRepo(db)
	events := storage.NewEventRepo(db)
	evidenceRepo := storage.NewEvidenceRepo(db)
	snapshots := storage.NewSnapshotRepo(db)
	outcomes := storage.NewOutcomeRepo(db)
	feedback := storage.NewFeedbackRepo(db)
	apiUsage := storage.NewApiUsageRepo(db)
	taxonomyGaps := storage.NewTaxonomyGapRepo(db)
	sources := storage.NewSourceRepo(db)
	rawItems := storage.NewRawItemRepo(db)

	if err := storage.NewDefinitionLoader(db, trends, log).LoadAndSync(ctx, cfg.TrendDefinitionsPath); err != nil {
		log.Fatal().Err(err).Msg("trend definitions load failed")
	}
	if err := storage.NewSourceDefinitionLoader(sources, log).LoadAndSync(ctx, cfg.SourceDefinitionsPath); err != nil {
		log.Fatal().Err(err).Msg("source definitions load failed")
	}

	connPool := llm.DefaultConnectionPool()
	defer connPool.Close()

	registry := llm.NewRegistry()
	primary, secondary := registerProviders(cfg.LLM, registry, connPool, log)

	healthPoller := llm.NewHealthPoller(registry, log, 30*time.Second)
	healthPoller.Start()
	defer healthPoller.Stop()

	modelSyncer := llm.NewModelSyncer(registry, log, 10*time.Minute)
	modelSyncer.Start()
	defer modelSyncer.Stop()

	pricing := llm.DefaultPricing()
	if cfg.LLM.PricingFilePath != "" {
		if err := pricing.LoadFromFile(cfg.LLM.PricingFilePath); err != nil {
			log.Warn().Err(err).Str("path", cfg.LLM.PricingFilePath).Msg("pricing file load failed, using defaults")
		}
	}

	policy := llmpolicy.New(cfg.LLM, apiUsage, pricing, primary, secondary, trends, taxonomyGaps, log)

	normalizer := dedup.NewURLNormalizer(cfg.Dedup.TrackingParams, cfg.Dedup.StrictQueryPreservation)
	dedupChecker := dedup.NewChecker(rawItems, normalizer, cfg.Dedup.RecencyWindow, cfg.Dedup.EmbeddingSimilarityMin, log)
	clusterer := cluster.New(db, events, rawItems, cfg.Vector)
	ledger := evidence.New(db, trends, evidenceRepo, snapshots, cfg.Trend)

	embedProvider, ok := registry.Get("openai")
	if !ok {
		log.Fatal().Msg("embeddings require the openai provider to be registered (set OPENAI_API_KEY)")
	}
	rawEmbedder := embed.NewProviderEmbedder(embedProvider, "text-embedding-3-small", cfg.Vector.Dimensions, cfg.LLM.MaxInputTokens)
	embedder, err := embed.NewCachingEmbedder(rawEmbedder, "data/embed-cache", 30*24*time.Hour, log)
	if err != nil {
		log.Fatal().Err(err).Msg("embed cache init failed")
	}
	defer embedder.Close()

	orchestrator := pipeline.New(db, rawItems, events, sources, trends, dedupChecker, clusterer, embedder, policy, ledger, cfg.Dedup.RecencyWindow, log)

	scorer := calibration.NewScorer(outcomes, evidenceRepo, cfg.Calibration)
	notifier := calibration.NewNotifier(&http.Client{Timeout: 30 * time.Second}, cfg.Calibration, log)
	calibrationService := calibration.NewService(scorer, notifier, log)

	simulator := counterfactual.NewSimulator(trends, evidenceRepo, cfg.Trend)
	triage := taxonomy.New(taxonomyGaps, log)

	q, err := queue.New(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("queue connect failed")
	}
	defer q.Close()

	workerDeps := workers.Deps{
		Orchestrator: orchestrator,
		Ledger:       ledger,
		Trends:       trends,
		Events:       events,
		RawItems:     rawItems,
		Evidence:     evidenceRepo,
		Calibration:  calibrationService,
		Queue:        &cfg.Queue,
		Log:          log,
	}
	supervisor := workers.NewSupervisor(q, workerDeps, cfg.Queue, log)
	supervisorErrCh := supervisor.ServeBackground(ctx)

	scheduler := queue.NewScheduler(q, cfg.Queue, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		DB: db, Trends: trends, Events: events, Evidence: evidenceRepo,
		Snapshots: snapshots, Outcomes: outcomes, Feedback: feedback, ApiUsage: apiUsage,
		Ledger: ledger, Simulator: simulator, Scorer: scorer, Triage: triage,
		TrendCfg: cfg.Trend, LLMCfg: cfg.LLM, Log: log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("sentinel listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-supervisorErrCh:
		log.Error().Err(err).Msg("worker supervisor exited unexpectedly")
	}

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful http shutdown failed")
	} else {
		log.Info().Msg("sentinel stopped gracefully")
	}
}

// registerProviders registers the anthropic/openai connectors this
// system actually exercises (primary/secondary per cfg.LLM) whenever
// their API keys are present, and returns them for llmpolicy.New. A
// missing primary or secondary key is fatal — the two-tier policy has
// no meaningful fallback without both.
func registerProviders(cfg config.LLMSettings, registry *llm.Registry, pool *llm.ConnectionPool, log zerolog.Logger) (primary, secondary llm.Provider) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p := llm.NewAnthropicProvider(llm.ProviderConfig{
			Name:       "anthropic",
			APIKey:     key,
			Models:     []string{cfg.PrimaryModel, cfg.SecondaryModel},
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			Pool:       pool,
		})
		registry.Register(p)
		log.Info().Msg("registered anthropic provider")
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p := llm.NewOpenAIProvider(llm.ProviderConfig{
			Name:       "openai",
			APIKey:     key,
			Models:     []string{cfg.PrimaryModel, cfg.SecondaryModel, "text-embedding-3-small"},
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			Pool:       pool,
		})
		registry.Register(p)
		log.Info().Msg("registered openai provider")
	}

	p, ok := registry.Get(cfg.PrimaryProvider)
	if !ok {
		log.Fatal().Str("provider", cfg.PrimaryProvider).Msg("primary llm provider not registered — check its API key env var")
	}
	s, ok := registry.Get(cfg.SecondaryProvider)
	if !ok {
		log.Fatal().Str("provider", cfg.SecondaryProvider).Msg("secondary llm provider not registered — check its API key env var")
	}
	return p, s
}
