package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 内容规则类型常量
const (
	FilterKindWhitelist = "whitelist"
	FilterKindBlacklist = "blacklist"

	FilterModeKeyword = "keyword"
	FilterModeRegex   = "regex"
)

// 时段规则模式常量
const (
	TimeWindowModeAllow = "allow"
	TimeWindowModeBlock = "block"
)

// FilterRule 某配对的内容过滤规则，由外部管理层维护，核心只读
type FilterRule struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	PairID    primitive.ObjectID `bson:"pair_id"`
	Kind      string             `bson:"kind"`    // whitelist/blacklist
	Mode      string             `bson:"mode"`    // keyword/regex
	Pattern   string             `bson:"pattern"` // 关键词或正则
	IsActive  bool               `bson:"is_active"`
	CreatedAt time.Time          `bson:"created_at"`
}

// TimeWindow 某配对的时段规则
// 起止时间以当天分钟数表示，weekdays 使用 time.Weekday 的数值（0=周日）
type TimeWindow struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	PairID      primitive.ObjectID `bson:"pair_id"`
	StartMinute int                `bson:"start_minute"` // [0, 1440)
	EndMinute   int                `bson:"end_minute"`   // [0, 1440)
	Weekdays    []int              `bson:"weekdays"`     // 空表示每天生效
	Mode        string             `bson:"mode"`         // allow/block
	IsActive    bool               `bson:"is_active"`
	CreatedAt   time.Time          `bson:"created_at"`
}

// AppliesOn 规则是否对指定星期生效
func (w *TimeWindow) AppliesOn(day time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, d := range w.Weekdays {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// Contains 当天分钟数是否落在 [start, end] 区间内，支持跨午夜区间
func (w *TimeWindow) Contains(minute int) bool {
	if w.StartMinute <= w.EndMinute {
		return minute >= w.StartMinute && minute <= w.EndMinute
	}
	// 跨午夜，例如 22:00-06:00
	return minute >= w.StartMinute || minute <= w.EndMinute
}
