package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lysyi3m/event-comb/app/api"
	"github.com/lysyi3m/event-comb/app/cache"
	"github.com/lysyi3m/event-comb/app/cfg"
	"github.com/lysyi3m/event-comb/app/crawl"
	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/dedup"
	"github.com/lysyi3m/event-comb/app/extract"
	"github.com/lysyi3m/event-comb/app/fetch"
	"github.com/lysyi3m/event-comb/app/ingest"
	"github.com/lysyi3m/event-comb/app/llm"
	"github.com/lysyi3m/event-comb/app/metrics"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/repair"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
	"github.com/lysyi3m/event-comb/app/venue"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Event Comb", "version", appCfg.Version, "db_path", appCfg.DBPath, "sources_dir", appCfg.SourcesDir)

	if err := run(appCfg); err != nil {
		slog.Error("Event Comb stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	if err := os.MkdirAll(filepath.Dir(appCfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	venues, err := venue.LoadTable(appCfg.VenuesFile)
	if err != nil {
		return fmt.Errorf("failed to load venue table: %w", err)
	}
	slog.Debug("Venue table loaded", "rows", venues.Len())

	registry := source.NewRegistry(appCfg.SourcesDir)
	if err := registry.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	slog.Info("Source configurations loaded", "count", registry.Count(), "enabled", len(registry.Enabled()))

	m := metrics.New()

	limiter := ratelimit.New(ratelimit.Config{
		Intervals: map[ratelimit.Class]time.Duration{
			ratelimit.ClassDefault:    appCfg.FetchInterval,
			ratelimit.ClassGentle:     appCfg.GentleFetchInterval,
			ratelimit.ClassCompletion: appCfg.CompletionInterval,
		},
		MaxRequestsPerRun: appCfg.MaxRequestsPerRun,
	}, ratelimit.WithObserver(func(class ratelimit.Class, waited time.Duration) {
		m.ObserveWait(string(class), waited)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractCache := newCache(ctx, appCfg)
	if closer, ok := extractCache.(io.Closer); ok {
		defer closer.Close()
	}

	httpFetcher := fetch.NewHTTPClient(&http.Client{}, appCfg.UserAgent, limiter)
	var fetcher fetch.Client = httpFetcher
	if appCfg.FirecrawlAPIKey != "" {
		fc, err := fetch.NewFirecrawlClient(appCfg.FirecrawlAPIKey, appCfg.FirecrawlAPIURL, limiter)
		if err != nil {
			return err
		}
		fetcher = fc
		slog.Info("Using fetch service", "url", appCfg.FirecrawlAPIURL)
	} else {
		slog.Info("Fetch service not configured, using direct HTTP fetching")
	}

	var completion crawl.TextExtractor
	if appCfg.LLMAPIKey != "" {
		client := llm.NewClient(llm.Config{
			APIKey:  appCfg.LLMAPIKey,
			BaseURL: appCfg.LLMBaseURL,
			Model:   appCfg.LLMModel,
		})
		completion = extract.NewCompletionExtractor(client, limiter, extract.CompletionConfig{
			Model:        client.Model().Name,
			ChunkSize:    appCfg.ChunkSize,
			ChunkOverlap: appCfg.ChunkOverlap,
			MinEvents:    appCfg.MinEvents,
			CacheTTL:     appCfg.CacheTTL,
		},
			extract.WithCache(extractCache),
			extract.WithRepairObserver(func(kind repair.Kind) { m.ObserveRepair(kind.String()) }),
		)
	} else {
		slog.Warn("Completion service not configured, only structured data and pattern extraction will run")
	}

	var embedder dedup.Embedder
	if appCfg.EmbeddingAPIKey != "" {
		embedder = llm.NewEmbeddingClient(llm.EmbeddingConfig{
			APIKey:  appCfg.EmbeddingAPIKey,
			BaseURL: appCfg.EmbeddingBaseURL,
			Model:   appCfg.EmbeddingModel,
		})
	} else {
		slog.Warn("Embedding service not configured, duplicate detection is disabled")
	}

	eventRepo := database.NewEventRepository(db, venues)
	sourceRepo := database.NewSourceRepository(db)
	logRepo := database.NewSyncLogRepository(db)

	orchestrator := crawl.New(fetcher, httpFetcher, completion,
		&extract.PatternExtractor{Dates: dates.NewParser(dates.DefaultTables(), dates.WithLocation(time.Local))},
		crawl.WithExtractObserver(m.ObserveExtract),
	)

	deduplicator := dedup.New(embedder, eventRepo, limiter, dedup.Config{
		Threshold: appCfg.DedupThreshold,
		TopK:      appCfg.DedupTopK,
	})

	pipeline := ingest.New(registry, orchestrator, deduplicator, eventRepo, logRepo, limiter,
		ingest.WithRunObserver(func(entry *database.SyncLog) {
			m.ObserveRun(entry.Source, entry.Status, entry.Duration, entry.PagesProcessed)
		}),
		ingest.WithUpsertObserver(func(res database.BatchResult) {
			m.ObserveUpserts(res.Inserted, res.Updated, res.Skipped, res.Failed)
		}),
	)

	scheduler := tasks.NewScheduler(registry, sourceRepo, pipeline,
		time.Duration(appCfg.SchedulerInterval)*time.Second, appCfg.WorkerCount)
	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(registry, sourceRepo, eventRepo, logRepo, scheduler, extractCache)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, m.Handler(), appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return nil
}

// newCache returns the Redis cache when configured and reachable, and the
// in-memory cache otherwise.
func newCache(ctx context.Context, appCfg *cfg.Cfg) cache.Cache {
	if appCfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, appCfg.RedisAddr)
		if err == nil {
			slog.Info("Using Redis extraction cache", "addr", appCfg.RedisAddr)
			return rc
		}
		slog.Warn("Redis unavailable, falling back to in-memory cache", "addr", appCfg.RedisAddr, "error", err)
	}
	return cache.NewMemory(1000, appCfg.CacheTTL)
}
