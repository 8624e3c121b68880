package models

import (
	"context"
	"io"
	"time"
)

// MediaKind 媒体类型，在事件入口处一次性判定，下游不再探测
type MediaKind string

const (
	MediaKindText     MediaKind = "text"
	MediaKindPhoto    MediaKind = "photo"
	MediaKindVideo    MediaKind = "video"
	MediaKindDocument MediaKind = "document"
	MediaKindSticker  MediaKind = "sticker"
	MediaKindUnknown  MediaKind = "unknown"
)

// MediaRef 指向源端媒体的可流式引用
type MediaRef interface {
	// Identity 返回稳定的媒体标识，跨多个目标去重下载时使用
	Identity() string

	// Size 返回媒体字节数，未知时为 0
	Size() int64

	// Open 打开分块读取流，调用方负责关闭
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceMessage 源频道消息，仅在处理期间存在，不落库
type SourceMessage struct {
	ID           int       // 源消息 ID
	ChatID       int64     // 源聊天 ID（原生形式）
	ChatTitle    string    // 源聊天标题
	ChatUsername string    // 公开用户名，私有频道为空
	ChatType     string    // channel/group/supergroup
	InviteLink   string    // 邀请链接，仅私有聊天可能存在
	Date         time.Time // 消息时间
	Text         string    // 文本内容
	Caption      string    // 媒体说明文字
	ReplyToID    int       // 回复的源消息 ID，0 表示非回复
	ReplyToText  string    // 被回复消息的文本，用于无关系可用时的内联引用
	GroupID      string    // 媒体组 ID，空表示非相册成员
	Kind         MediaKind // 入口处判定的媒体类型
	Media        MediaRef  // 媒体引用，Kind 为 text 时为 nil
}

// Content 返回用于过滤与落地展示的文本内容
func (m *SourceMessage) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// HasMedia 是否携带媒体
func (m *SourceMessage) HasMedia() bool {
	return m.Media != nil && m.Kind != MediaKindText
}
