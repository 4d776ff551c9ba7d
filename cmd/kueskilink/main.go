package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kueskilink/kueskilink/internal/app"
	"github.com/kueskilink/kueskilink/internal/employees"
	"github.com/kueskilink/kueskilink/internal/links"
	"github.com/kueskilink/kueskilink/internal/observability"
	"github.com/kueskilink/kueskilink/internal/platform/cache"
	"github.com/kueskilink/kueskilink/internal/platform/db"
	"github.com/kueskilink/kueskilink/internal/products"
	"github.com/kueskilink/kueskilink/internal/provider/kueski"
	"github.com/kueskilink/kueskilink/internal/stats"
	"github.com/kueskilink/kueskilink/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, stats cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	statsCache := stats.NewCache(redisClient, cfg.CacheTTL)

	notifier, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	linksRepo := links.NewRepository(pool)
	linksService := links.NewService(links.ServiceConfig{
		Store:    linksRepo,
		Logger:   logger,
		BaseURL:  cfg.BaseURL,
		Cache:    statsCache,
		Notifier: notifier,
	})
	linksHandler := links.NewHandler(logger, linksService)

	productsRepo := products.NewRepository(pool)
	productsService := products.NewService(productsRepo, logger)
	productsHandler := products.NewHandler(logger, productsService)

	employeesRepo := employees.NewRepository(pool)
	employeesService := employees.NewService(employeesRepo, logger)
	employeesHandler := employees.NewHandler(logger, employeesService)

	statsRepo := stats.NewRepository(pool)
	statsService := stats.NewService(statsRepo, statsCache, logger, time.Now)
	statsHandler := stats.NewHandler(logger, statsService)

	kueskiClient := kueski.NewClient(kueski.ClientConfig{
		BaseURL: cfg.KueskiBaseURL,
		APIKey:  cfg.KueskiAPIKey,
		Timeout: cfg.KueskiTimeout,
	})
	providerHandler := kueski.NewHandler(logger, kueskiClient, linksService, cfg.KueskiWebhookSecret)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LinksHandler:     linksHandler,
		ProductsHandler:  productsHandler,
		EmployeesHandler: employeesHandler,
		StatsHandler:     statsHandler,
		ProviderHandler:  providerHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
