package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"tg_forwarder/internal/telegram/models"
)

// RelationRepository 转发关系数据访问接口
type RelationRepository interface {
	// Upsert 写入转发关系（幂等，已存在的键不会被覆盖）
	Upsert(ctx context.Context, sourceChatID int64, sourceMessageID int, destChatID int64, destMessageID int) error

	// Get 查询转发关系，未找到返回 ErrRelationNotFound
	Get(ctx context.Context, sourceChatID int64, sourceMessageID int, destChatID int64) (int, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// ChannelRegistry 频道/配对/规则只读访问接口
// 数据由外部管理层写入，核心只消费
type ChannelRegistry interface {
	// GetChannel 根据归一化 ID 获取频道信息，未登记返回 nil
	GetChannel(ctx context.Context, channelID int64) (*models.Channel, error)

	// GetActivePairs 列出某监控频道的所有启用配对
	GetActivePairs(ctx context.Context, monitorChannelID int64) ([]*models.ChannelPair, error)

	// GetFilterRules 列出某配对的启用内容规则，按存储顺序返回
	GetFilterRules(ctx context.Context, pairID primitive.ObjectID) ([]*models.FilterRule, error)

	// GetTimeWindows 列出某配对的启用时段规则，按存储顺序返回
	GetTimeWindows(ctx context.Context, pairID primitive.ObjectID) ([]*models.TimeWindow, error)

	// RecordRelayOutcome 记录某配对一次转发结果（供外部统计展示，只写）
	RecordRelayOutcome(ctx context.Context, pairID primitive.ObjectID, success bool) error
}
