package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ForwardedRelation 源消息到某目标频道落地消息的持久映射
// 每个 (source_chat_id, source_message_id, dest_chat_id) 至多一条，只写一次，
// 之后仅被编辑/删除传播与回复串联读取
type ForwardedRelation struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	SourceChatID    int64              `bson:"source_chat_id"`    // 源聊天 ID（原生形式）
	SourceMessageID int                `bson:"source_message_id"` // 源消息 ID
	DestChatID      int64              `bson:"dest_chat_id"`      // 目标聊天 ID（原生形式）
	DestMessageID   int                `bson:"dest_message_id"`   // 落地消息 ID
	CreatedAt       time.Time          `bson:"created_at"`
}
