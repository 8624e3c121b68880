package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_forwarder/internal/telegram/models"
)

// ErrRelationNotFound 查询的转发关系不存在
var ErrRelationNotFound = errors.New("forward relation not found")

type relationRepository struct {
	collection *mongo.Collection
}

// NewRelationRepository 创建转发关系仓储实例
func NewRelationRepository(db *mongo.Database) RelationRepository {
	return &relationRepository{
		collection: db.Collection("forward_relations"),
	}
}

// Upsert 写入转发关系
// 使用 $setOnInsert 保证同一键并发写入时只有首次生效，后续调用为空操作
func (r *relationRepository) Upsert(ctx context.Context, sourceChatID int64, sourceMessageID int, destChatID int64, destMessageID int) error {
	filter := bson.M{
		"source_chat_id":    sourceChatID,
		"source_message_id": sourceMessageID,
		"dest_chat_id":      destChatID,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"dest_message_id": destMessageID,
			"created_at":      time.Now().UTC(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert forward relation: %w", err)
	}
	return nil
}

// Get 查询转发关系
func (r *relationRepository) Get(ctx context.Context, sourceChatID int64, sourceMessageID int, destChatID int64) (int, error) {
	filter := bson.M{
		"source_chat_id":    sourceChatID,
		"source_message_id": sourceMessageID,
		"dest_chat_id":      destChatID,
	}

	var relation models.ForwardedRelation
	err := r.collection.FindOne(ctx, filter).Decode(&relation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrRelationNotFound
		}
		return 0, fmt.Errorf("failed to query forward relation: %w", err)
	}

	return relation.DestMessageID, nil
}

// EnsureIndexes 确保索引存在
func (r *relationRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 复合唯一索引，保证每键至多一条并支撑所有查询
		{
			Keys: bson.D{
				{Key: "source_chat_id", Value: 1},
				{Key: "source_message_id", Value: 1},
				{Key: "dest_chat_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for forward_relations: %w", err)
	}

	return nil
}
