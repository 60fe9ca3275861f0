package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/config"
	delivery "github.com/paincake00/geopromo/internal/delivery/http"
	"github.com/paincake00/geopromo/internal/infrastructure/postgres"
	"github.com/paincake00/geopromo/internal/infrastructure/redis"
	"github.com/paincake00/geopromo/internal/logger"
	"github.com/paincake00/geopromo/internal/metrics"
	"github.com/paincake00/geopromo/internal/tracing"
	"github.com/paincake00/geopromo/internal/usecase"
	"github.com/paincake00/geopromo/internal/worker"
	"github.com/paincake00/geopromo/migrations"
)

func main() {
	// Загружаем .env (опционально)
	envErr := godotenv.Load()

	// 1. Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if envErr != nil {
		zl.Debug("no .env file loaded, relying on environment variables")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, zl); err != nil {
		zl.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		ServiceName: "geopromo",
		SampleRatio: cfg.TracingSampleRatio,
	}, zl)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	m, err := metrics.New(nil)
	if err != nil {
		return err
	}

	// 2. Подключение к базе данных (PostgreSQL) и миграции
	pgRepo, err := postgres.New(ctx, cfg.DatabaseURL, 0)
	if err != nil {
		return err
	}
	defer pgRepo.Close()
	if err := migrations.Apply(ctx, pgRepo.Pool); err != nil {
		return err
	}

	// 3. Подключение к Redis
	redisRepo, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisRepo.Close()
	redisRepo.ZonesTTL = cfg.ZoneCacheTTL

	// 4. Инициализация сервисов (Application Layer)
	// pgRepo реализует репозитории зон, правил, событий и справочника; redisRepo - кеш, снимки и очередь.
	clk := clock.NewSystem()
	zoneIndex := usecase.NewZoneIndex(pgRepo, redisRepo,
		usecase.WithZoneCacheTTL(cfg.ZoneCacheTTL),
		usecase.WithZoneIndexLogger(zl.Named("zones")),
		usecase.WithZoneIndexMetrics(m),
	)
	recorder := usecase.NewEventRecorder(pgRepo, clk, usecase.WithRecentWindow(cfg.RecentWindow))
	ruleEngine := usecase.NewRuleEngine(pgRepo, pgRepo)
	geoService := usecase.NewGeoService(ruleEngine, redisRepo, zl.Named("geo"), m)
	statsService := usecase.NewStatsService(recorder, pgRepo, pgRepo, clk)

	trackerLog := zl.Named("tracker")
	dispatcher := usecase.NewDispatcher(geoService, func() *usecase.Tracker {
		return usecase.NewTracker(zoneIndex, recorder, pgRepo,
			usecase.WithMembershipStore(redisRepo),
			usecase.WithTrackerClock(clk),
			usecase.WithTrackerLogger(trackerLog),
		)
	},
		usecase.WithShards(cfg.Shards),
		usecase.WithQueueSize(cfg.QueueSize),
		usecase.WithProcessTimeout(cfg.ProcessTimeout),
		usecase.WithIdleTTL(cfg.StateIdleTTL),
		usecase.WithDispatcherClock(clk),
		usecase.WithDispatcherLogger(zl.Named("dispatcher")),
		usecase.WithDispatcherMetrics(m),
	)

	// 5. Воркер доставки уведомлений
	w := worker.New(redisRepo, cfg.WebhookURL, cfg.WebhookMaxRetries, zl.Named("worker"), m)

	// 6. Инициализация HTTP-обработчика и роутера
	// Внедряем репозитории как "Pingers" для health-check
	handler := delivery.NewHandler(delivery.Services{
		Dispatcher: dispatcher,
		Events:     recorder,
		Rules:      ruleEngine,
		Stats:      statsService,
		Zones:      zoneIndex,
	}, pgRepo, redisRepo, cfg.APIKey, cfg.StatsWindow, m, zl.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.InitRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		w.Start(gctx)
		return nil
	})
	g.Go(func() error {
		zl.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// 7. Graceful Shutdown (Плавное завершение)
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	zl.Info("server exiting")
	return nil
}
