package main

import (
	"context"
	"os/signal"
	"syscall"

	"cryptoquotes-service/internal/bootstrap"
	"cryptoquotes-service/internal/config"
	"cryptoquotes-service/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	log := logx.L()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		cleanup()
		log.Fatal("init worker", zap.Error(err))
	}
	defer cleanup()

	bootstrap.ProvideWorker(app).Start(ctx)
}
