package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/careconnect/realtime/internal/server"
	"github.com/careconnect/realtime/pkg/config"
	"github.com/careconnect/realtime/pkg/logging"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; deployments set real env vars.
	_ = godotenv.Load()

	logger := logging.New(logging.LevelInfo)
	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
