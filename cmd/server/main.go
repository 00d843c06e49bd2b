package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/votewatch/realtime/internal/config"
	"github.com/votewatch/realtime/internal/database"
	"github.com/votewatch/realtime/internal/hub"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/repositories"
	"github.com/votewatch/realtime/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to create redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	messages := repositories.NewPostgresMessageRepository(pool)
	users := repositories.NewCachedUserRepository(
		repositories.NewPostgresUserRepository(pool),
		redisClient,
		cfg.ProfileCacheTTL,
	)

	h := hub.New(hub.Options{
		Messages:       messages,
		Users:          users,
		PingInterval:   cfg.PingInterval,
		AwayWindow:     cfg.AwayWindow,
		RosterInterval: cfg.RosterInterval,
		Logger:         logger,
		Metrics:        observability.NewMetrics(prometheus.DefaultRegisterer),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	srv := server.New(server.Options{
		Hub:         h,
		Messages:    messages,
		Users:       users,
		TokenSecret: cfg.ServiceTokenSecret,
		Checks: []server.Check{
			{Name: "postgres", Ping: pool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}()

	logger.Info("realtime relay listening", "port", cfg.ServerPort)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	// Hub.Run closes every live connection once ctx is cancelled; wait for
	// that drain before reporting a clean stop.
	wg.Wait()
	logger.Info("server stopped")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
