package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_forwarder/internal/app"
	"tg_forwarder/internal/config"
	"tg_forwarder/internal/logger"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.L().Info("Forwarder started")
	application.Run(ctx)

	// 收到退出信号后限期排空后台任务
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("Shutdown error: %v", err)
	}
	logger.L().Info("Forwarder stopped")
}
