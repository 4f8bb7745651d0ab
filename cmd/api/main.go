package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/api"
	"github.com/IlyasAtabaev731/tcg-trade/internal/config"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage/memory"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage/mongo"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage/postgres"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type storage interface {
	api.Storage
	Stop() error
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
		slog.String("storage", cfg.Storage),
	)

	store, err := openStorage(cfg)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()

	apiServer := api.New(cfg, log, store, []byte(cfg.TokenSecret))

	if cfg.CatalogSeedPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := apiServer.SeedCatalog(ctx, cfg.CatalogSeedPath)
		cancel()
		if err != nil {
			log.Error("Failed to seed catalog", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", "error", err)
	}
}

func openStorage(cfg *config.Config) (storage, error) {
	switch cfg.Storage {
	case config.StorageMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case config.StorageMemory:
		return memory.New(), nil
	default:
		return postgres.New(cfg.Postgres.DSN())
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
