package provider

import (
	"context"
	"io"

	"tg_forwarder/internal/telegram/models"
)

// SendOptions 发送选项
type SendOptions struct {
	ReplyTo        int  // 目标端被回复的消息 ID，0 表示不回复
	DisablePreview bool // 禁用链接预览，避免泄露源频道
	PlainText      bool // 禁用富文本格式（格式被拒后的降级重试）
}

// MediaItem 待发送的一件媒体
type MediaItem struct {
	Kind    models.MediaKind
	Name    string    // 文件名
	Data    io.Reader // 内容流
	Caption string    // 说明文字，可为空
}

// Destination 目标端投递边界
// 实现方不做错误归类，原始错误交由上层策略判定
type Destination interface {
	// NativeForward 协议级原生转发，保留原始署名
	NativeForward(ctx context.Context, destChatID int64, sourceChatID int64, messageID int) (int, error)

	// SendText 发送文本消息
	SendText(ctx context.Context, destChatID int64, text string, opts SendOptions) (int, error)

	// SendMedia 发送单件媒体
	SendMedia(ctx context.Context, destChatID int64, item MediaItem, opts SendOptions) (int, error)

	// SendMediaGroup 发送有序媒体组
	SendMediaGroup(ctx context.Context, destChatID int64, items []MediaItem, opts SendOptions) ([]int, error)

	// AttachMedia 就地把媒体挂到已发送的消息上（目标协议支持时）
	AttachMedia(ctx context.Context, destChatID int64, messageID int, item MediaItem) error

	// DeleteMessage 删除目标端消息
	DeleteMessage(ctx context.Context, destChatID int64, messageID int) error
}

// EventHandler 源端事件消费接口
type EventHandler interface {
	HandleNewMessage(ctx context.Context, msg *models.SourceMessage)
	HandleEditedMessage(ctx context.Context, msg *models.SourceMessage)

	// HandleDeletedMessages 源端删除事件可能只携带一批消息 ID，不含内容
	HandleDeletedMessages(ctx context.Context, sourceChatID int64, messageIDs []int)
}
