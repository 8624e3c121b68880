package forward

import (
	"sort"
	"sync"
	"time"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/models"
)

// dispatchedTTL 已派发组标记的保留时长，按条目过期而非周期性整体清空
const dispatchedTTL = 10 * time.Minute

// groupBuffer 单个媒体组的聚合缓冲
type groupBuffer struct {
	parts    map[int]*models.SourceMessage // 按消息 ID 去重
	anchorID int                           // 组内首个到达的分片，文本锚定消息以它为键
	timer    *time.Timer
}

// MediaGroupCollector 媒体组聚合器
// 源协议没有"相册完整"信号，这里以静默窗口判定完整：
// 窗口内每到一个新分片就重置计时，窗口静默后视为收齐并派发。
// 每个组 ID 恰好派发一次，之后到达的重复分片被忽略。
type MediaGroupCollector struct {
	mu         sync.Mutex
	buffers    map[string]*groupBuffer
	dispatched map[string]time.Time
	settle     time.Duration
	onCollect  func(groupID string, anchorID int, parts []*models.SourceMessage)
}

// NewMediaGroupCollector 创建媒体组聚合器
func NewMediaGroupCollector(settle time.Duration, onCollect func(string, int, []*models.SourceMessage)) *MediaGroupCollector {
	return &MediaGroupCollector{
		buffers:    make(map[string]*groupBuffer),
		dispatched: make(map[string]time.Time),
		settle:     settle,
		onCollect:  onCollect,
	}
}

// Add 把分片加入聚合缓冲，返回是否为组内首个分片
// 组已派发时忽略（对重复投递幂等）；同一消息 ID 的重复分片被去重
func (c *MediaGroupCollector) Add(msg *models.SourceMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneDispatchedLocked()

	if _, done := c.dispatched[msg.GroupID]; done {
		logger.L().Debugf("Media group %s already dispatched, part %d ignored", msg.GroupID, msg.ID)
		return false
	}

	buf, exists := c.buffers[msg.GroupID]
	if !exists {
		buf = &groupBuffer{
			parts:    make(map[int]*models.SourceMessage),
			anchorID: msg.ID,
		}
		c.buffers[msg.GroupID] = buf
		logger.L().Debugf("Created media group buffer: group_id=%s, anchor=%d", msg.GroupID, msg.ID)
	}

	if _, dup := buf.parts[msg.ID]; !dup {
		buf.parts[msg.ID] = msg
		logger.L().Debugf("Added part to media group: group_id=%s, message_id=%d, total=%d",
			msg.GroupID, msg.ID, len(buf.parts))
	}

	// 静默窗口：每个新分片重置计时
	if buf.timer != nil {
		buf.timer.Stop()
	}
	groupID := msg.GroupID
	buf.timer = time.AfterFunc(c.settle, func() {
		c.collect(groupID)
	})

	return !exists
}

// collect 静默窗口到期后派发整组，组 ID 恰好转为已派发一次
func (c *MediaGroupCollector) collect(groupID string) {
	c.mu.Lock()
	buf, exists := c.buffers[groupID]
	if !exists {
		c.mu.Unlock()
		return
	}
	delete(c.buffers, groupID)
	c.dispatched[groupID] = time.Now()
	c.mu.Unlock()

	parts := make([]*models.SourceMessage, 0, len(buf.parts))
	for _, part := range buf.parts {
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })

	logger.L().Infof("Media group collection completed: group_id=%s, parts=%d", groupID, len(parts))
	c.onCollect(groupID, buf.anchorID, parts)
}

// pruneDispatchedLocked 按条目剔除过期的已派发标记，调用方需持锁
func (c *MediaGroupCollector) pruneDispatchedLocked() {
	cutoff := time.Now().Add(-dispatchedTTL)
	for groupID, at := range c.dispatched {
		if at.Before(cutoff) {
			delete(c.dispatched, groupID)
		}
	}
}

// Stop 停止所有未派发组的计时器
func (c *MediaGroupCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for groupID, buf := range c.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(c.buffers, groupID)
	}
}
