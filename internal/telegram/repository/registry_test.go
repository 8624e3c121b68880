package repository

import (
	"context"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"tg_forwarder/internal/telegram/models"
)

func TestChannelRegistryGetChannel(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		registry := &channelRegistry{channels: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			relationNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "channel_id", Value: int64(1234567890)},
				{Key: "channel_name", Value: "Daily Digest"},
				{Key: "channel_type", Value: models.ChannelTypeMonitor},
				{Key: "is_active", Value: true},
			},
		))

		channel, err := registry.GetChannel(context.Background(), 1234567890)
		if err != nil {
			t.Fatalf("GetChannel failed: %v", err)
		}
		if channel == nil || channel.ChannelID != 1234567890 || !channel.IsActive {
			t.Fatalf("unexpected channel: %+v", channel)
		}
	})

	mt.Run("unregistered channel returns nil", func(mt *mtest.T) {
		registry := &channelRegistry{channels: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			relationNamespace(mt),
			mtest.FirstBatch,
		))

		channel, err := registry.GetChannel(context.Background(), 999)
		if err != nil {
			t.Fatalf("GetChannel failed: %v", err)
		}
		if channel != nil {
			t.Fatalf("expected nil for unregistered channel, got %+v", channel)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		registry := &channelRegistry{channels: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		_, err := registry.GetChannel(context.Background(), 1234567890)
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to query channel") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestChannelRegistryGetActivePairs(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		registry := &channelRegistry{pairs: mt.Coll}
		first := primitive.NewObjectID()
		second := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(
				1,
				relationNamespace(mt),
				mtest.FirstBatch,
				bson.D{
					{Key: "_id", Value: first},
					{Key: "monitor_channel_id", Value: int64(1234567890)},
					{Key: "forward_channel_id", Value: int64(111)},
					{Key: "is_active", Value: true},
				},
			),
			mtest.CreateCursorResponse(
				0,
				relationNamespace(mt),
				mtest.NextBatch,
				bson.D{
					{Key: "_id", Value: second},
					{Key: "monitor_channel_id", Value: int64(1234567890)},
					{Key: "forward_channel_id", Value: int64(222)},
					{Key: "is_active", Value: true},
				},
			),
		)

		pairs, err := registry.GetActivePairs(context.Background(), 1234567890)
		if err != nil {
			t.Fatalf("GetActivePairs failed: %v", err)
		}
		if len(pairs) != 2 {
			t.Fatalf("expected 2 pairs, got %d", len(pairs))
		}
		if pairs[0].ForwardChannelID != 111 || pairs[1].ForwardChannelID != 222 {
			t.Fatalf("pairs decoded out of order: %+v", pairs)
		}
	})

	mt.Run("no pairs", func(mt *mtest.T) {
		registry := &channelRegistry{pairs: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			relationNamespace(mt),
			mtest.FirstBatch,
		))

		pairs, err := registry.GetActivePairs(context.Background(), 42)
		if err != nil {
			t.Fatalf("GetActivePairs failed: %v", err)
		}
		if len(pairs) != 0 {
			t.Fatalf("expected no pairs, got %d", len(pairs))
		}
	})
}

func TestChannelRegistryGetFilterRules(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success preserves stored order", func(mt *mtest.T) {
		registry := &channelRegistry{filterRules: mt.Coll}
		pairID := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(
				1,
				relationNamespace(mt),
				mtest.FirstBatch,
				bson.D{
					{Key: "_id", Value: primitive.NewObjectID()},
					{Key: "pair_id", Value: pairID},
					{Key: "kind", Value: models.FilterKindWhitelist},
					{Key: "mode", Value: models.FilterModeKeyword},
					{Key: "pattern", Value: "news"},
					{Key: "is_active", Value: true},
				},
			),
			mtest.CreateCursorResponse(
				0,
				relationNamespace(mt),
				mtest.NextBatch,
				bson.D{
					{Key: "_id", Value: primitive.NewObjectID()},
					{Key: "pair_id", Value: pairID},
					{Key: "kind", Value: models.FilterKindBlacklist},
					{Key: "mode", Value: models.FilterModeRegex},
					{Key: "pattern", Value: `spam\d+`},
					{Key: "is_active", Value: true},
				},
			),
		)

		rules, err := registry.GetFilterRules(context.Background(), pairID)
		if err != nil {
			t.Fatalf("GetFilterRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(rules))
		}
		if rules[0].Kind != models.FilterKindWhitelist || rules[1].Kind != models.FilterKindBlacklist {
			t.Fatalf("rules decoded out of order: %+v", rules)
		}
	})
}

func TestChannelRegistryGetTimeWindows(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		registry := &channelRegistry{timeWindows: mt.Coll}
		pairID := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			relationNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "pair_id", Value: pairID},
				{Key: "start_minute", Value: int32(540)},
				{Key: "end_minute", Value: int32(1080)},
				{Key: "weekdays", Value: bson.A{int32(1), int32(2), int32(3), int32(4), int32(5)}},
				{Key: "mode", Value: models.TimeWindowModeAllow},
				{Key: "is_active", Value: true},
			},
		))

		windows, err := registry.GetTimeWindows(context.Background(), pairID)
		if err != nil {
			t.Fatalf("GetTimeWindows failed: %v", err)
		}
		if len(windows) != 1 {
			t.Fatalf("expected 1 window, got %d", len(windows))
		}
		w := windows[0]
		if w.StartMinute != 540 || w.EndMinute != 1080 || w.Mode != models.TimeWindowModeAllow {
			t.Fatalf("unexpected window: %+v", w)
		}
		if len(w.Weekdays) != 5 {
			t.Fatalf("expected 5 weekdays, got %v", w.Weekdays)
		}
	})
}

func TestChannelRegistryRecordRelayOutcome(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		registry := &channelRegistry{pairStats: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := registry.RecordRelayOutcome(context.Background(), primitive.NewObjectID(), true); err != nil {
			t.Fatalf("RecordRelayOutcome failed: %v", err)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		registry := &channelRegistry{pairStats: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := registry.RecordRelayOutcome(context.Background(), primitive.NewObjectID(), false)
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to record relay outcome") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
