package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/icequery/icequery/internal/demo/seeder"
	s3store "github.com/icequery/icequery/internal/storage/s3"
)

func main() {
	cfg, err := seeder.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seeder config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store, err := s3store.NewFromKeyFile(cfg.Bucket, cfg.CredentialsFile, cfg.Prefix)
	if err != nil {
		logger.Error("failed to connect warehouse storage", slog.Any("error", err))
		os.Exit(1)
	}
	service, err := seeder.NewService(cfg, logger, store)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("seeding warehouse",
		slog.String("bucket", cfg.Bucket),
		slog.String("table", cfg.Database+"."+cfg.Table),
		slog.Int("snapshots", cfg.Snapshots),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seeding complete")
}
