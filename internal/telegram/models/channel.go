package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 频道角色常量
const (
	ChannelTypeMonitor = "monitor"
	ChannelTypeForward = "forward"
)

// Channel 已登记的频道
// channel_id 以归一化形式存储（去掉 -100 前缀），由外部管理层写入
type Channel struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ChannelID   int64              `bson:"channel_id"`   // 归一化频道 ID
	ChannelName string             `bson:"channel_name"` // 频道名称
	ChannelType string             `bson:"channel_type"` // monitor/forward
	IsActive    bool               `bson:"is_active"`    // 是否启用
	CreatedAt   time.Time          `bson:"created_at"`
}

// ChannelPair 监控频道到转发频道的配对，由外部管理层维护，核心只读
type ChannelPair struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	MonitorChannelID int64              `bson:"monitor_channel_id"` // 归一化源频道 ID
	ForwardChannelID int64              `bson:"forward_channel_id"` // 归一化目标频道 ID
	IsActive         bool               `bson:"is_active"`
	CreatedAt        time.Time          `bson:"created_at"`
}
