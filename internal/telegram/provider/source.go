package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/models"
)

// SourceMapper 把 Bot API 更新映射为内部源消息
// 媒体类型在这里一次性判定（photo/video/document/sticker/unknown），
// 下游不再做能力探测
type SourceMapper struct {
	bot   *bot.Bot
	httpc *http.Client

	mu      sync.Mutex
	invites map[int64]string
}

// NewSourceMapper 创建源消息映射器
// downloadTimeout 用于媒体拉取的 HTTP 客户端，按大文件取长超时
func NewSourceMapper(b *bot.Bot, downloadTimeout time.Duration) *SourceMapper {
	return &SourceMapper{
		bot:     b,
		httpc:   &http.Client{Timeout: downloadTimeout},
		invites: make(map[int64]string),
	}
}

// FromMessage 把 Bot API 消息转换为源消息
func (m *SourceMapper) FromMessage(ctx context.Context, msg *botModels.Message) *models.SourceMessage {
	source := &models.SourceMessage{
		ID:           msg.ID,
		ChatID:       msg.Chat.ID,
		ChatTitle:    msg.Chat.Title,
		ChatUsername: msg.Chat.Username,
		ChatType:     string(msg.Chat.Type),
		Date:         time.Unix(int64(msg.Date), 0),
		Text:         msg.Text,
		Caption:      msg.Caption,
		GroupID:      msg.MediaGroupID,
		Kind:         models.MediaKindText,
	}
	source.InviteLink = m.inviteLink(ctx, &msg.Chat)

	if msg.ReplyToMessage != nil {
		source.ReplyToID = msg.ReplyToMessage.ID
		source.ReplyToText = msg.ReplyToMessage.Text
		if source.ReplyToText == "" {
			source.ReplyToText = msg.ReplyToMessage.Caption
		}
	}

	switch {
	case len(msg.Photo) > 0:
		// 取最大尺寸的版本
		p := msg.Photo[len(msg.Photo)-1]
		source.Kind = models.MediaKindPhoto
		source.Media = m.newFileRef(p.FileID, p.FileUniqueID, int64(p.FileSize))
	case msg.Video != nil:
		source.Kind = models.MediaKindVideo
		source.Media = m.newFileRef(msg.Video.FileID, msg.Video.FileUniqueID, int64(msg.Video.FileSize))
	case msg.Document != nil:
		source.Kind = models.MediaKindDocument
		source.Media = m.newFileRef(msg.Document.FileID, msg.Document.FileUniqueID, int64(msg.Document.FileSize))
	case msg.Sticker != nil:
		source.Kind = models.MediaKindSticker
		source.Media = m.newFileRef(msg.Sticker.FileID, msg.Sticker.FileUniqueID, int64(msg.Sticker.FileSize))
	case msg.Animation != nil:
		source.Kind = models.MediaKindUnknown
		source.Media = m.newFileRef(msg.Animation.FileID, msg.Animation.FileUniqueID, int64(msg.Animation.FileSize))
	case msg.Audio != nil:
		source.Kind = models.MediaKindUnknown
		source.Media = m.newFileRef(msg.Audio.FileID, msg.Audio.FileUniqueID, int64(msg.Audio.FileSize))
	case msg.Voice != nil:
		source.Kind = models.MediaKindUnknown
		source.Media = m.newFileRef(msg.Voice.FileID, msg.Voice.FileUniqueID, int64(msg.Voice.FileSize))
	}

	return source
}

// inviteLink 解析私有聊天的邀请链接并缓存
// 更新本身不携带邀请链接，需要按聊天向 GetChat 查询一次；
// 公开聊天（有用户名）不查询，查询失败按无链接处理
func (m *SourceMapper) inviteLink(ctx context.Context, chat *botModels.Chat) string {
	if chat.Username != "" {
		return ""
	}

	m.mu.Lock()
	link, ok := m.invites[chat.ID]
	m.mu.Unlock()
	if ok {
		return link
	}

	info, err := m.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chat.ID})
	if err != nil {
		logger.L().Debugf("Failed to resolve invite link for chat %d: %v", chat.ID, err)
		return ""
	}

	m.mu.Lock()
	m.invites[chat.ID] = info.InviteLink
	m.mu.Unlock()
	return info.InviteLink
}

func (m *SourceMapper) newFileRef(fileID, uniqueID string, size int64) *fileRef {
	return &fileRef{
		bot:      m.bot,
		httpc:    m.httpc,
		fileID:   fileID,
		uniqueID: uniqueID,
		size:     size,
	}
}

// fileRef Bot API 文件的可流式引用
type fileRef struct {
	bot      *bot.Bot
	httpc    *http.Client
	fileID   string
	uniqueID string
	size     int64
}

// Identity 返回跨消息稳定的文件标识
func (r *fileRef) Identity() string { return r.uniqueID }

// Size 返回文件字节数
func (r *fileRef) Size() int64 { return r.size }

// Open 解析下载地址并打开读取流
func (r *fileRef) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := r.bot.GetFile(ctx, &bot.GetFileParams{FileID: r.fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", r.fileID, err)
	}

	link := r.bot.FileDownloadLink(file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file %s: %w", r.fileID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d fetching file %s", resp.StatusCode, r.fileID)
	}

	return resp.Body, nil
}
