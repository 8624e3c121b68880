package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func relationNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}

func TestRelationRepositoryUpsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &relationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}}}},
		))

		err := repo.Upsert(context.Background(), -1001234567890, 42, -1009876543210, 77)
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	})

	mt.Run("existing key is a no-op", func(mt *mtest.T) {
		repo := &relationRepository{collection: mt.Coll}
		// $setOnInsert 对已存在的键不修改任何字段
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.Upsert(context.Background(), -1001234567890, 42, -1009876543210, 99)
		if err != nil {
			t.Fatalf("Upsert of existing key must succeed: %v", err)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := &relationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := repo.Upsert(context.Background(), -1001234567890, 42, -1009876543210, 77)
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to upsert forward relation") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRelationRepositoryGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &relationRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			relationNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "source_chat_id", Value: int64(-1001234567890)},
				{Key: "source_message_id", Value: int32(42)},
				{Key: "dest_chat_id", Value: int64(-1009876543210)},
				{Key: "dest_message_id", Value: int32(77)},
				{Key: "created_at", Value: now},
			},
		))

		destMsgID, err := repo.Get(context.Background(), -1001234567890, 42, -1009876543210)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if destMsgID != 77 {
			t.Fatalf("unexpected dest message ID: got %d, want 77", destMsgID)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := &relationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			relationNamespace(mt),
			mtest.FirstBatch,
		))

		_, err := repo.Get(context.Background(), -1001234567890, 9999, -1009876543210)
		if !errors.Is(err, ErrRelationNotFound) {
			t.Fatalf("expected ErrRelationNotFound, got %v", err)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &relationRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		_, err := repo.Get(context.Background(), -1001234567890, 42, -1009876543210)
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if errors.Is(err, ErrRelationNotFound) {
			t.Fatalf("query failure must not be reported as not-found")
		}
	})
}
