package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icequery/icequery/internal/api"
	"github.com/icequery/icequery/internal/api/uistatic"
	"github.com/icequery/icequery/internal/auth"
	"github.com/icequery/icequery/internal/config"
	"github.com/icequery/icequery/internal/observability"
	"github.com/icequery/icequery/internal/query"
	"github.com/icequery/icequery/internal/session"
	"github.com/icequery/icequery/internal/snapshot"
)

func main() {
	cfg, err := config.LoadFromEnv("icequery-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	sessions := &session.Provider{Logger: logger}
	executor := &query.Executor{
		Sessions: sessions,
		Runner:   &query.Runner{Logger: logger},
		Logger:   logger,
	}
	resolver := &snapshot.Service{Sessions: sessions, Logger: logger}

	deps := api.Dependencies{
		Logger:            logger,
		Executor:          executor,
		Resolver:          resolver,
		Sessions:          sessions,
		UI:                uistatic.Handler(),
		Readiness:         api.CheckWarehouseDefaults(cfg),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
