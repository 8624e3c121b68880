package app

import (
	"context"
	"fmt"
	"time"

	"tg_forwarder/internal/config"
	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/mongo"
	"tg_forwarder/internal/telegram"
	"tg_forwarder/internal/telegram/filter"
	"tg_forwarder/internal/telegram/forward"
	"tg_forwarder/internal/telegram/media"
	"tg_forwarder/internal/telegram/provider"
	"tg_forwarder/internal/telegram/repository"
)

// sweepInterval 暂存文件清理周期
const sweepInterval = time.Minute

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB     *mongo.Client
	Staging     *media.Staging
	Listener    *telegram.Listener
	Coordinator *forward.Service
}

// New 初始化应用及其所有服务
// 按依赖顺序初始化，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	db := mongoClient.Database()
	relations := repository.NewRelationRepository(db)
	registry := repository.NewChannelRegistry(db)

	if err := relations.EnsureIndexes(context.Background()); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("ensure relation indexes failed: %w", err)
	}

	staging, err := media.NewStaging(cfg.StagingDir, cfg.StagedFileRetention)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init staging failed: %w", err)
	}
	app.Staging = staging

	worker := media.NewTransferWorker(staging, 4, cfg.DownloadTimeout)

	// 监听器与目标端适配器复用同一个 bot 连接
	listener, err := telegram.NewListener(telegram.Config{
		Token:           cfg.TelegramToken,
		DownloadTimeout: cfg.DownloadTimeout,
	})
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init listener failed: %w", err)
	}
	app.Listener = listener

	coordinator := forward.NewService(
		provider.NewBotDestination(listener.Bot()),
		relations,
		registry,
		filter.NewEngine(registry),
		worker,
		staging,
		cfg.MediaGroupSettle,
		cfg.ForwardRatePerSecond,
	)
	app.Coordinator = coordinator
	listener.Bind(coordinator)

	if err := staging.StartSweeper(sweepInterval); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("start staging sweeper failed: %w", err)
	}

	return app, nil
}

// Run 启动事件监听，阻塞直到上下文取消
func (a *App) Run(ctx context.Context) {
	a.Listener.Start(ctx)
}

// Close 优雅关闭所有服务
// 先停事件摄取，再等后台任务汇合，最后清理暂存与存储连接
func (a *App) Close(ctx context.Context) error {
	if a.Listener != nil {
		a.Listener.Stop()
	}
	if a.Coordinator != nil {
		a.Coordinator.Shutdown(ctx)
	}
	if a.Staging != nil {
		a.Staging.Close()
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
