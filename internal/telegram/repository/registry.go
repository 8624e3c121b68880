package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_forwarder/internal/telegram/models"
)

type channelRegistry struct {
	channels    *mongo.Collection
	pairs       *mongo.Collection
	filterRules *mongo.Collection
	timeWindows *mongo.Collection
	pairStats   *mongo.Collection
}

// NewChannelRegistry 创建频道登记只读仓储实例
// 各集合由外部管理层维护，核心侧只建立查询所需索引
func NewChannelRegistry(db *mongo.Database) ChannelRegistry {
	return &channelRegistry{
		channels:    db.Collection("channels"),
		pairs:       db.Collection("channel_pairs"),
		filterRules: db.Collection("filter_rules"),
		timeWindows: db.Collection("time_windows"),
		pairStats:   db.Collection("pair_stats"),
	}
}

// GetChannel 根据归一化 ID 获取频道信息
func (r *channelRegistry) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	var channel models.Channel
	err := r.channels.FindOne(ctx, bson.M{"channel_id": channelID}).Decode(&channel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query channel %d: %w", channelID, err)
	}
	return &channel, nil
}

// GetActivePairs 列出某监控频道的所有启用配对
func (r *channelRegistry) GetActivePairs(ctx context.Context, monitorChannelID int64) ([]*models.ChannelPair, error) {
	filter := bson.M{
		"monitor_channel_id": monitorChannelID,
		"is_active":          true,
	}

	cursor, err := r.pairs.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel pairs: %w", err)
	}
	defer cursor.Close(ctx)

	var pairs []*models.ChannelPair
	if err := cursor.All(ctx, &pairs); err != nil {
		return nil, fmt.Errorf("failed to decode channel pairs: %w", err)
	}

	return pairs, nil
}

// GetFilterRules 列出某配对的启用内容规则
// 不排序，保持存储自然顺序（规则求值为先匹配先生效）
func (r *channelRegistry) GetFilterRules(ctx context.Context, pairID primitive.ObjectID) ([]*models.FilterRule, error) {
	filter := bson.M{
		"pair_id":   pairID,
		"is_active": true,
	}

	cursor, err := r.filterRules.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*models.FilterRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode filter rules: %w", err)
	}

	return rules, nil
}

// GetTimeWindows 列出某配对的启用时段规则
func (r *channelRegistry) GetTimeWindows(ctx context.Context, pairID primitive.ObjectID) ([]*models.TimeWindow, error) {
	filter := bson.M{
		"pair_id":   pairID,
		"is_active": true,
	}

	cursor, err := r.timeWindows.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query time windows: %w", err)
	}
	defer cursor.Close(ctx)

	var windows []*models.TimeWindow
	if err := cursor.All(ctx, &windows); err != nil {
		return nil, fmt.Errorf("failed to decode time windows: %w", err)
	}

	return windows, nil
}

// RecordRelayOutcome 累加某配对的转发成功/失败计数
func (r *channelRegistry) RecordRelayOutcome(ctx context.Context, pairID primitive.ObjectID, success bool) error {
	field := "failed_count"
	if success {
		field = "success_count"
	}

	update := bson.M{
		"$inc": bson.M{field: 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	_, err := r.pairStats.UpdateOne(ctx, bson.M{"pair_id": pairID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to record relay outcome: %w", err)
	}
	return nil
}
