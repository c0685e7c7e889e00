package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eldtechnologies/chatdigest/internal/api"
	"github.com/eldtechnologies/chatdigest/internal/config"
	"github.com/eldtechnologies/chatdigest/internal/logging"
	"github.com/eldtechnologies/chatdigest/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("invalid server configuration")
	}

	ctx := context.Background()

	// Message store: PostgreSQL when DATABASE_URL is set, SQLite otherwise
	ds, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("message store unavailable")
	}
	defer ds.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL, cfg.ScopeLockTTL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, dashboard is not rate limited")
	}

	if cfg.DashboardPasswordHash == "" {
		logger.Warn().Msg("DASHBOARD_PASSWORD_HASH not set, dashboard API is unauthenticated")
	}

	router := api.NewRouter(logger, cfg, ds, redisStore)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting dashboard server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
