package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cryptoquotes-service/internal/bootstrap"
	"cryptoquotes-service/internal/config"
	infraconfig "cryptoquotes-service/internal/infrastructure/config"
	httpserver "cryptoquotes-service/internal/infrastructure/http"
	"cryptoquotes-service/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	logger := logx.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		cleanup()
		logger.Fatal("bootstrap", zap.Error(err))
	}
	defer cleanup()

	srv := httpserver.NewServer(app.Store, app.Ingest, app.Analytics, cfg.Symbols, cfg.RollingWindow)
	if app.Ping != nil {
		srv.SetReadyCheck(app.Ping)
	}
	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: httpserver.NewRouter(srv),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("listen", zap.Error(err))
		os.Exit(1)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), infraconfig.DefaultShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
