package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/provider"
)

// Listener 源端事件监听器
// 消费新消息/编辑/删除事件，映射为内部源消息后交给协调器。
// 事件经工作池异步处理，摄取循环不被单条消息的转发阻塞
type Listener struct {
	bot     *bot.Bot
	mapper  *provider.SourceMapper
	handler provider.EventHandler
	pool    *WorkerPool
}

// Config 监听器配置
type Config struct {
	Token           string
	DownloadTimeout time.Duration
	Workers         int
	QueueSize       int
}

// NewListener 创建事件监听器
// 事件处理器由 Bind 在 Start 之前注入（协调器依赖本监听器的 bot 连接）
func NewListener(cfg Config) (*Listener, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}

	l := &Listener{
		pool: NewWorkerPool(cfg.Workers, cfg.QueueSize),
	}

	b, err := bot.New(cfg.Token, bot.WithDefaultHandler(l.onUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	l.bot = b
	l.mapper = provider.NewSourceMapper(b, cfg.DownloadTimeout)

	logger.L().Info("Source event listener initialized")
	return l, nil
}

// Bot 返回底层 bot 实例（目标端适配器复用同一连接）
func (l *Listener) Bot() *bot.Bot { return l.bot }

// Bind 注入事件处理器，必须在 Start 之前调用
func (l *Listener) Bind(handler provider.EventHandler) {
	l.handler = handler
}

// onUpdate 把 Bot API 更新分发到对应的事件处理器
func (l *Listener) onUpdate(ctx context.Context, _ *bot.Bot, update *botModels.Update) {
	if l.handler == nil {
		return
	}
	switch {
	case update.ChannelPost != nil:
		msg := l.mapper.FromMessage(ctx, update.ChannelPost)
		l.pool.Submit(EventTask{Ctx: ctx, Run: func(ctx context.Context) {
			l.handler.HandleNewMessage(ctx, msg)
		}})
	case update.EditedChannelPost != nil:
		msg := l.mapper.FromMessage(ctx, update.EditedChannelPost)
		l.pool.Submit(EventTask{Ctx: ctx, Run: func(ctx context.Context) {
			l.handler.HandleEditedMessage(ctx, msg)
		}})
	}
}

// Start 启动监听（阻塞式，应在 goroutine 中运行）
func (l *Listener) Start(ctx context.Context) {
	logger.L().Info("Starting source event listener...")
	l.bot.Start(ctx)
	logger.L().Info("Source event listener stopped")
}

// Stop 关闭工作池，等待在途事件处理完成
func (l *Listener) Stop() {
	l.pool.Shutdown()
}
