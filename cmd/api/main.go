package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NikkuNoShori/RepoMonitor/internal/aggregate"
	"github.com/NikkuNoShori/RepoMonitor/internal/api"
	"github.com/NikkuNoShori/RepoMonitor/internal/auth"
	"github.com/NikkuNoShori/RepoMonitor/internal/config"
	"github.com/NikkuNoShori/RepoMonitor/internal/dashboard"
	"github.com/NikkuNoShori/RepoMonitor/internal/logging"
	"github.com/NikkuNoShori/RepoMonitor/internal/notify"
	"github.com/NikkuNoShori/RepoMonitor/internal/refresh"
	"github.com/NikkuNoShori/RepoMonitor/internal/remote"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage/postgres"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.Config{Level: "info"})
		fallback := logging.NewLogger("main")
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("storage_type", cfg.StorageType).Msg("failed to initialize storage")
	}
	defer store.Close()

	// Realtime notifications (optional)
	rdb, err := notify.Connect(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Aggregation pipeline
	creds := auth.NewEnvProvider(cfg.GithubTokenEnv)
	limiters := remote.NewLimiterRegistry(cfg.GithubRateLimit, cfg.GithubBurst)
	counter := remote.NewClient(creds, limiters,
		remote.WithCountCache(cfg.CountCacheSize, cfg.CountCacheTTL))
	runner := aggregate.NewRunner(counter, nil)

	view := dashboard.NewStore()
	reporter := dashboard.NewReporter(view)

	manager := refresh.NewManager(store, runner, reporter, view, refresh.Config{
		BatchSize:       cfg.BatchSize,
		InterBatchDelay: cfg.InterBatchDelay,
		Interval:        cfg.RefreshInterval,
	})
	go manager.Start(ctx)

	subscriber := notify.NewSubscriber(rdb, manager)
	go subscriber.Run(ctx)

	// HTTP API
	publisher := notify.NewPublisher(rdb)
	handler := api.NewHandler(view, store, manager, publisher)
	router := api.SetupRoutes(handler, cfg.APIToken)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("storage_type", cfg.StorageType).
			Bool("realtime", rdb != nil).
			Msg("starting API server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
		os.Exit(1)
	}

	logger.Info().Msg("server stopped")
}
