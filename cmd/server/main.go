// Command server starts the HTTP API: query routing, intake event webhook,
// status reads, and HR-job polling.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrdataworks/talentdb/internal/adapter/ai"
	"github.com/hrdataworks/talentdb/internal/adapter/ai/prompts"
	"github.com/hrdataworks/talentdb/internal/adapter/httpserver"
	"github.com/hrdataworks/talentdb/internal/adapter/objectstore/minio"
	"github.com/hrdataworks/talentdb/internal/adapter/queue/redpanda"
	"github.com/hrdataworks/talentdb/internal/adapter/repo/postgres"
	"github.com/hrdataworks/talentdb/internal/adapter/search/opensearch"
	"github.com/hrdataworks/talentdb/internal/adapter/statestore/redisstate"
	"github.com/hrdataworks/talentdb/internal/app"
	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/observability"
	"github.com/hrdataworks/talentdb/internal/service/hranalyzer"
	"github.com/hrdataworks/talentdb/internal/service/matcher"
	"github.com/hrdataworks/talentdb/internal/service/queryplan"
	"github.com/hrdataworks/talentdb/internal/service/ratelimiter"
	"github.com/hrdataworks/talentdb/internal/service/taxonomy"
	"github.com/hrdataworks/talentdb/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

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
	if err := objects.EnsureBucket(ctx); err != nil {
		slog.Warn("artifact bucket probe failed", slog.Any("error", err))
	}

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers, "talentdb-server-producer")
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	registry, err := prompts.Load(cfg.PromptDir, cfg.PromptVersion)
	if err != nil {
		slog.Error("prompt registry load failed", slog.Any("error", err))
		os.Exit(1)
	}
	aicl := ai.New(cfg)

	repo := postgres.NewCandidateRepo(pool, postgres.DSNConnector{DSN: cfg.DBURL})
	taxRepo := postgres.NewTaxonomyRepo(pool)
	search := opensearch.New(cfg.SearchURL, cfg.SearchIndex, cfg.SearchUsername, cfg.SearchPassword)

	intakeState := redisstate.NewIntakeStore(rdb)
	queryCache := redisstate.NewQueryCache(rdb, cfg.QueryCacheTTL)
	hrJobs := redisstate.NewHRJobStore(rdb)

	limiter := ratelimiter.New(rdb, pool, map[string]ratelimiter.Bucket{
		"query": ratelimiter.PerMinute(cfg.QueryBudgetPerMin),
	})
	if err := limiter.WarmFromStore(ctx); err != nil {
		slog.Warn("rate limit warm-up failed", slog.Any("error", err))
	}

	mapper := taxonomy.NewMapper(taxRepo, aicl, cfg.AliasCacheTTL)
	translator := queryplan.NewTranslator(aicl, registry, mapper, cfg)
	relaxed := matcher.New(repo, aicl, registry, cfg)
	analyzer := hranalyzer.New(repo, aicl, registry, hrJobs, producer, cfg)

	if cfg.RetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.RetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
	}

	srv := &httpserver.Server{
		Cfg:     cfg,
		Objects: objects,
		Budget:  limiter,
		Intake:  &usecase.IntakeService{State: intakeState, Objects: objects, Queue: producer},
		Status:  &usecase.StatusService{State: intakeState, Objects: objects},
		Query: &usecase.QueryService{
			Translator: translator,
			Repo:       repo,
			Search:     search,
			AI:         aicl,
			Cache:      queryCache,
			Matcher:    relaxed,
			Analyzer:   analyzer,
			Jobs:       hrJobs,
		},
	}

	checks := []app.Check{
		app.PostgresCheck(pool),
		app.RedisCheck(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		app.SearchCheck(cfg),
		app.ObjectStoreCheck(objects),
	}
	handler := app.BuildRouter(cfg, srv, checks)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
