// Command worker consumes the intake and HR-analysis queues, runs the
// pipeline stages, and hosts the stuck-intake sweeper.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hrdataworks/talentdb/internal/adapter/ai"
	"github.com/hrdataworks/talentdb/internal/adapter/ai/prompts"
	"github.com/hrdataworks/talentdb/internal/adapter/extract"
	"github.com/hrdataworks/talentdb/internal/adapter/objectstore/minio"
	"github.com/hrdataworks/talentdb/internal/adapter/ocr"
	"github.com/hrdataworks/talentdb/internal/adapter/queue/redpanda"
	"github.com/hrdataworks/talentdb/internal/adapter/repo/postgres"
	"github.com/hrdataworks/talentdb/internal/adapter/search/opensearch"
	"github.com/hrdataworks/talentdb/internal/adapter/statestore/redisstate"
	"github.com/hrdataworks/talentdb/internal/app"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/internal/service/hranalyzer"
	"github.com/hrdataworks/talentdb/internal/service/indexer"
	"github.com/hrdataworks/talentdb/internal/service/quality"
	"github.com/hrdataworks/talentdb/internal/service/structurer"
	"github.com/hrdataworks/talentdb/internal/service/taxonomy"
	"github.com/hrdataworks/talentdb/internal/usecase"
)

func main() {
	reindex := flag.Bool("reindex", false, "rebuild the search index from all active candidates, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	objects, err := minio.New(cfg)
	if err != nil {
		slog.Error("object store connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	registry, err := prompts.Load(cfg.PromptDir, cfg.PromptVersion)
	if err != nil {
		slog.Error("prompt registry load failed", slog.Any("error", err))
		os.Exit(1)
	}
	aicl := ai.New(cfg)

	repo := postgres.NewCandidateRepo(pool, postgres.DSNConnector{DSN: cfg.DBURL})
	taxRepo := postgres.NewTaxonomyRepo(pool)
	search := opensearch.New(cfg.SearchURL, cfg.SearchIndex, cfg.SearchUsername, cfg.SearchPassword)
	if err := search.EnsureIndex(ctx); err != nil {
		slog.Warn("search index bootstrap failed", slog.Any("error", err))
	}

	if *reindex {
		ix := indexer.New(search, aicl)
		n, err := ix.ReindexAll(ctx, repo)
		if err != nil {
			slog.Error("reindex failed", slog.Int("indexed", n), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("reindex completed", slog.Int("indexed", n))
		return
	}

	intakeState := redisstate.NewIntakeStore(rdb)
	hrJobs := redisstate.NewHRJobStore(rdb)

	providers := []ocr.Provider{ocr.NewTesseractProvider(cfg.OCRTessdataDir)}
	if cfg.OCRCloudURL != "" {
		providers = append(providers, ocr.NewCloudProvider(cfg.OCRCloudURL, cfg.OCRCloudAPIKey))
	}
	providers = append(providers, ocr.NewVisionProvider(aicl, cfg.LLMVisionModel))
	engine := ocr.NewEngine(providers, aicl, cfg.OCRTimeout)

	mapper := taxonomy.NewMapper(taxRepo, aicl, cfg.AliasCacheTTL)
	analyzer := hranalyzer.New(repo, aicl, registry, hrJobs, nil, cfg)

	intakeSvc := &usecase.IntakeService{
		State:      intakeState,
		Objects:    objects,
		Router:     extract.NewRouter(),
		Renderer:   ocr.NewPopplerRenderer(),
		OCR:        engine,
		Structurer: structurer.New(aicl, registry, cfg),
		Mapper:     mapper,
		Quality:    quality.New(),
		Repo:       repo,
		Indexer:    indexer.New(search, aicl),
	}

	consumer, err := redpanda.NewConsumer(
		cfg.KafkaBrokers,
		"talentdb-workers",
		"talentdb-worker-consumer",
		cfg.ConsumerMaxConcurrency,
		func(ctx context.Context, p domain.IntakeTaskPayload) error { return intakeSvc.Process(ctx, p) },
		func(ctx context.Context, p domain.HRTaskPayload) error { return analyzer.ProcessTask(ctx, p) },
	)
	if err != nil {
		slog.Error("queue consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	sweeper := app.NewStuckIntakeSweeper(intakeState, cfg.StuckIntakeAge, cfg.SweeperInterval)
	go sweeper.Run(ctx)

	if cfg.RetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.RetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
	}

	slog.Info("worker starting",
		slog.String("env", cfg.AppEnv),
		slog.Int("max_concurrency", cfg.ConsumerMaxConcurrency))
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}

	// Give in-flight handlers a moment to finish their status writes.
	time.Sleep(200 * time.Millisecond)
	slog.Info("worker stopped")
}
