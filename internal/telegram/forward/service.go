package forward

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/filter"
	"tg_forwarder/internal/telegram/media"
	"tg_forwarder/internal/telegram/models"
	"tg_forwarder/internal/telegram/provider"
	"tg_forwarder/internal/telegram/repository"
)

// albumDownloadConcurrency 同一相册分片的并发下载上限
const albumDownloadConcurrency = 3

// 锚定转发可能仍在限流退避中，相册派发先于它完成时关系尚未落库；
// 派发侧在限期内轮询等待，超过限期才视为该配对的锚定被过滤或失败
const (
	anchorWaitTimeout = 2 * time.Minute
	anchorWaitPoll    = 100 * time.Millisecond
)

// Downloader 媒体下载边界
type Downloader interface {
	Download(ctx context.Context, msg *models.SourceMessage) (*media.StagedFile, error)
}

// Stager 暂存文件删除边界（转发成功后立即清理）
type Stager interface {
	Remove(path string) error
}

// Service 转发协调器
// 负责：策略链转发、关系落库、媒体异步派发、编辑/删除传播。
// 单个配对上的失败只影响该配对，扇出继续
type Service struct {
	dest       provider.Destination
	relations  repository.RelationRepository
	registry   repository.ChannelRegistry
	filters    *filter.Engine
	downloader Downloader
	staging    Stager
	collector  *MediaGroupCollector
	limiter    *RateLimiter

	tasks sync.WaitGroup
}

// NewService 创建转发协调器
func NewService(
	dest provider.Destination,
	relations repository.RelationRepository,
	registry repository.ChannelRegistry,
	filters *filter.Engine,
	downloader Downloader,
	staging Stager,
	mediaGroupSettle time.Duration,
	ratePerSecond int,
) *Service {
	s := &Service{
		dest:       dest,
		relations:  relations,
		registry:   registry,
		filters:    filters,
		downloader: downloader,
		staging:    staging,
		limiter:    NewRateLimiter(ratePerSecond),
	}
	s.collector = NewMediaGroupCollector(mediaGroupSettle, s.dispatchMediaGroup)
	return s
}

// HandleNewMessage 处理新消息事件：过滤、扇出转发、媒体派发
func (s *Service) HandleNewMessage(ctx context.Context, msg *models.SourceMessage) {
	pairs, ok := s.activePairs(ctx, msg.ChatID)
	if !ok {
		return
	}

	if msg.GroupID != "" {
		// 相册分片全部进聚合器；只有首个分片触发同步的文本锚定转发
		if first := s.collector.Add(msg); !first {
			return
		}
	}

	taskID := uuid.New().String()
	logger.L().Infof("Starting relay task: task_id=%s, source_chat=%d, message_id=%d, pairs=%d",
		taskID, msg.ChatID, msg.ID, len(pairs))

	// 并发扇出到所有配对，互不阻塞
	var wg sync.WaitGroup
	for _, pair := range pairs {
		wg.Add(1)
		go func(p *models.ChannelPair) {
			defer wg.Done()
			s.relayToPair(ctx, taskID, msg, p)
		}(pair)
	}
	wg.Wait()
}

// relayToPair 向单个配对转发一条消息
func (s *Service) relayToPair(ctx context.Context, taskID string, msg *models.SourceMessage, pair *models.ChannelPair) {
	allowed, err := s.filters.Allow(ctx, pair, time.Now(), msg.Content())
	if err != nil {
		logger.L().Errorf("Filter evaluation failed, failing open: task_id=%s: %v",
			taskID, fmt.Errorf("%w: %v", ErrFilterEvaluation, err))
	}
	if !allowed {
		logger.L().Debugf("Message blocked by filters: task_id=%s, pair=%s", taskID, pair.ID.Hex())
		return
	}

	destChatID := NativeChannelID(pair.ForwardChannelID)

	if err := s.limiter.Wait(ctx); err != nil {
		logger.L().Errorf("Rate limiter wait canceled: task_id=%s: %v", taskID, err)
		return
	}

	destMsgID, winner, err := s.relayMessage(ctx, msg, destChatID)

	if statErr := s.registry.RecordRelayOutcome(ctx, pair.ID, err == nil); statErr != nil {
		logger.L().Warnf("Failed to record relay outcome for pair %s: %v", pair.ID.Hex(), statErr)
	}

	if err != nil {
		logger.L().Errorf("Relay failed: task_id=%s, dest=%d: %v", taskID, destChatID, err)
		return
	}
	logger.L().Infof("Relay succeeded: task_id=%s, dest=%d, dest_message_id=%d, strategy=%s",
		taskID, destChatID, destMsgID, winner)

	// 关系写失败只记录，不触发补偿重发（接受重复投递风险）
	if err := s.relations.Upsert(ctx, msg.ChatID, msg.ID, destChatID, destMsgID); err != nil {
		logger.L().Errorf("Failed to record forward relation: task_id=%s, dest=%d: %v", taskID, destChatID, err)
	}

	// 原生转发已携带媒体；兜底路径的单件媒体异步补挂，相册交给聚合器派发
	if msg.HasMedia() && msg.GroupID == "" && winner != strategyNativeForward {
		s.goAsync(func() {
			s.deliverSingleMedia(context.Background(), msg, destChatID, destMsgID)
		})
	}
}

// relayMessage 执行策略链：原生转发 → 合成消息 → 纯文本降级
func (s *Service) relayMessage(ctx context.Context, msg *models.SourceMessage, destChatID int64) (int, string, error) {
	opts := provider.SendOptions{DisablePreview: true}
	quote := ""

	if msg.ReplyToID != 0 {
		// 被回复消息已有落地关系时走原生串联回复，否则内联截断引用
		if replyDest, err := s.relations.Get(ctx, msg.ChatID, msg.ReplyToID, destChatID); err == nil {
			opts.ReplyTo = replyDest
		} else {
			if !errors.Is(err, repository.ErrRelationNotFound) {
				logger.L().Warnf("Failed to resolve reply relation for message %d: %v", msg.ID, err)
			}
			quote = composeQuote(msg.ReplyToText)
		}
	}

	synthetic := composeSynthetic(msg, quote)

	strategies := []relayStrategy{
		{
			name: strategyNativeForward,
			send: func(ctx context.Context) (int, error) {
				return s.dest.NativeForward(ctx, destChatID, msg.ChatID, msg.ID)
			},
			fallthroughOn: isForwardRejected,
		},
		{
			name: strategySynthetic,
			send: func(ctx context.Context) (int, error) {
				return s.dest.SendText(ctx, destChatID, synthetic, opts)
			},
			fallthroughOn: isFormattingRejected,
		},
		{
			name: strategyPlainText,
			send: func(ctx context.Context) (int, error) {
				plain := opts
				plain.PlainText = true
				return s.dest.SendText(ctx, destChatID, synthetic, plain)
			},
		},
	}

	return runStrategies(ctx, destChatID, strategies)
}

// deliverSingleMedia 下载单件媒体并挂到已落地的消息上
// 目标协议不允许就地改挂时退化为对该消息的串联回复发送
func (s *Service) deliverSingleMedia(ctx context.Context, msg *models.SourceMessage, destChatID int64, destMsgID int) {
	file, err := s.downloader.Download(ctx, msg)
	if err != nil {
		logger.L().Errorf("Media delivery failed: message_id=%d, dest=%d: %v",
			msg.ID, destChatID, fmt.Errorf("%w: %v", ErrDownloadFailure, err))
		return
	}

	if err := s.sendStagedFile(ctx, file, destChatID, destMsgID, msg.Caption); err != nil {
		logger.L().Errorf("Failed to deliver media: message_id=%d, dest=%d: %v", msg.ID, destChatID, err)
		return
	}

	// 成功后立即清理暂存文件，失败的留给定时清理
	if err := s.staging.Remove(file.Path); err != nil {
		logger.L().Warnf("Failed to remove staged file %s: %v", file.Path, err)
	}
}

// sendStagedFile 尝试就地改挂，被拒后以串联回复发送
func (s *Service) sendStagedFile(ctx context.Context, file *media.StagedFile, destChatID int64, destMsgID int, caption string) error {
	item, closer, err := stagedItem(file, caption)
	if err != nil {
		return err
	}
	attachErr := s.dest.AttachMedia(ctx, destChatID, destMsgID, item)
	closer.Close()
	if attachErr == nil {
		return nil
	}

	logger.L().Debugf("In-place attach rejected for message %d, sending as reply: %v", destMsgID, attachErr)

	item, closer, err = stagedItem(file, caption)
	if err != nil {
		return err
	}
	defer closer.Close()

	_, err = s.dest.SendMedia(ctx, destChatID, item, provider.SendOptions{ReplyTo: destMsgID})
	if err != nil {
		return wrapSendError(err)
	}
	return nil
}

// dispatchMediaGroup 聚合器判定相册收齐后的派发回调
// 下载所有分片，对每个配对：首件尝试挂到锚定消息，其余按序以媒体组串联发送
func (s *Service) dispatchMediaGroup(groupID string, anchorID int, parts []*models.SourceMessage) {
	s.goAsync(func() {
		ctx := context.Background()
		sourceChatID := parts[0].ChatID

		files := make([]*media.StagedFile, len(parts))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(albumDownloadConcurrency)
		for i, part := range parts {
			if !part.HasMedia() {
				continue
			}
			i, part := i, part
			g.Go(func() error {
				file, err := s.downloader.Download(gctx, part)
				if err != nil {
					return fmt.Errorf("%w: part %d: %v", ErrDownloadFailure, part.ID, err)
				}
				files[i] = file
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logger.L().Errorf("Media group download failed: group_id=%s: %v", groupID, err)
			return
		}

		staged := make([]*media.StagedFile, 0, len(files))
		for _, file := range files {
			if file != nil {
				staged = append(staged, file)
			}
		}
		if len(staged) == 0 {
			return
		}

		pairs, ok := s.activePairs(ctx, sourceChatID)
		if !ok {
			return
		}

		delivered := true
		for _, pair := range pairs {
			if err := s.deliverGroupToPair(ctx, pair, sourceChatID, anchorID, staged, parts); err != nil {
				delivered = false
				logger.L().Errorf("Media group delivery failed: group_id=%s, pair=%s: %v",
					groupID, pair.ID.Hex(), err)
			}
		}

		// 所有配对投递完成后清理暂存；有失败时留给定时清理兜底
		if delivered {
			for _, file := range staged {
				if err := s.staging.Remove(file.Path); err != nil {
					logger.L().Warnf("Failed to remove staged file %s: %v", file.Path, err)
				}
			}
		}
	})
}

// awaitAnchorRelation 轮询等待相册锚定消息的落地关系
// 锚定消息的文本转发与相册派发并发推进，转发在退避中时关系会晚到
func (s *Service) awaitAnchorRelation(ctx context.Context, sourceChatID int64, anchorID int, destChatID int64) (int, error) {
	deadline := time.Now().Add(anchorWaitTimeout)
	for {
		destMsgID, err := s.relations.Get(ctx, sourceChatID, anchorID, destChatID)
		if err == nil {
			return destMsgID, nil
		}
		if !errors.Is(err, repository.ErrRelationNotFound) {
			return 0, fmt.Errorf("%w: %v", ErrRelationNotFound, err)
		}
		if time.Now().After(deadline) {
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(anchorWaitPoll):
		}
	}
}

// deliverGroupToPair 向单个配对投递整组媒体
func (s *Service) deliverGroupToPair(ctx context.Context, pair *models.ChannelPair, sourceChatID int64, anchorID int, files []*media.StagedFile, parts []*models.SourceMessage) error {
	destChatID := NativeChannelID(pair.ForwardChannelID)

	anchorDestID, err := s.awaitAnchorRelation(ctx, sourceChatID, anchorID, destChatID)
	if err != nil {
		if errors.Is(err, repository.ErrRelationNotFound) {
			// 限期内锚定仍未落地（被过滤或转发失败），该配对跳过
			logger.L().Debugf("No anchor relation for group anchor %d in chat %d", anchorID, destChatID)
			return nil
		}
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	caption := groupCaption(parts)

	// 首件尝试就地挂到锚定消息
	rest := files
	item, closer, err := stagedItem(files[0], caption)
	if err != nil {
		return err
	}
	attachErr := s.dest.AttachMedia(ctx, destChatID, anchorDestID, item)
	closer.Close()
	if attachErr == nil {
		rest = files[1:]
	} else {
		logger.L().Debugf("In-place attach rejected for anchor %d, including in group send: %v", anchorDestID, attachErr)
	}

	if len(rest) == 0 {
		return nil
	}

	items := make([]provider.MediaItem, 0, len(rest))
	closers := make([]*os.File, 0, len(rest))
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()
	for _, file := range rest {
		item, closer, err := stagedItem(file, "")
		if err != nil {
			return err
		}
		items = append(items, item)
		closers = append(closers, closer)
	}

	if _, err := s.dest.SendMediaGroup(ctx, destChatID, items, provider.SendOptions{ReplyTo: anchorDestID}); err != nil {
		return wrapSendError(err)
	}
	return nil
}

// HandleEditedMessage 处理编辑事件
// 有落地关系时发送串联的编辑通知（不做协议级就地编辑：富文本变更
// 在任意历史媒体挂载之上不可靠），无关系时发送非定向通知
func (s *Service) HandleEditedMessage(ctx context.Context, msg *models.SourceMessage) {
	pairs, ok := s.activePairs(ctx, msg.ChatID)
	if !ok {
		return
	}

	notice := "✏️ Message edited:\n\n" + msg.Content()

	for _, pair := range pairs {
		destChatID := NativeChannelID(pair.ForwardChannelID)
		opts := provider.SendOptions{DisablePreview: true}

		destMsgID, err := s.relations.Get(ctx, msg.ChatID, msg.ID, destChatID)
		if err == nil {
			opts.ReplyTo = destMsgID
		} else if !errors.Is(err, repository.ErrRelationNotFound) {
			logger.L().Warnf("Failed to resolve relation for edited message %d: %v", msg.ID, err)
		}

		s.sendNotice(ctx, destChatID, notice, opts)
	}
}

// HandleDeletedMessages 处理删除事件
// 删除事件可能只携带一批消息 ID；对每个能找到关系的 ID，
// 每个配对发送一条串联删除通知。重复的删除事件不做去重
func (s *Service) HandleDeletedMessages(ctx context.Context, sourceChatID int64, messageIDs []int) {
	pairs, ok := s.activePairs(ctx, sourceChatID)
	if !ok {
		return
	}

	for _, messageID := range messageIDs {
		for _, pair := range pairs {
			destChatID := NativeChannelID(pair.ForwardChannelID)

			destMsgID, err := s.relations.Get(ctx, sourceChatID, messageID, destChatID)
			if err != nil {
				if !errors.Is(err, repository.ErrRelationNotFound) {
					logger.L().Warnf("Failed to resolve relation for deleted message %d: %v", messageID, err)
				}
				continue
			}

			s.sendNotice(ctx, destChatID, "🗑 The original message was deleted.",
				provider.SendOptions{ReplyTo: destMsgID, DisablePreview: true})
		}
	}
}

// sendNotice 发送通知，格式被拒时纯文本重试一次
func (s *Service) sendNotice(ctx context.Context, destChatID int64, notice string, opts provider.SendOptions) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	_, err := s.dest.SendText(ctx, destChatID, notice, opts)
	if err != nil && isFormattingRejected(err) {
		plain := opts
		plain.PlainText = true
		_, err = s.dest.SendText(ctx, destChatID, notice, plain)
	}
	if err != nil {
		logger.L().Errorf("Failed to send notice to chat %d: %v", destChatID, wrapSendError(err))
	}
}

// activePairs 解析源频道的启用配对，未登记/停用/无配对时返回 false
func (s *Service) activePairs(ctx context.Context, sourceChatID int64) ([]*models.ChannelPair, bool) {
	normalized := NormalizeChannelID(sourceChatID)

	channel, err := s.registry.GetChannel(ctx, normalized)
	if err != nil {
		logger.L().Errorf("Failed to look up channel %d: %v", normalized, err)
		return nil, false
	}
	if channel == nil || !channel.IsActive {
		return nil, false
	}

	pairs, err := s.registry.GetActivePairs(ctx, normalized)
	if err != nil {
		logger.L().Errorf("Failed to list pairs for channel %d: %v", normalized, err)
		return nil, false
	}
	if len(pairs) == 0 {
		return nil, false
	}
	return pairs, true
}

// goAsync 启动受管的后台任务，关闭时统一汇合
func (s *Service) goAsync(fn func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.L().Errorf("Background task panic recovered: %v", r)
			}
		}()
		fn()
	}()
}

// Shutdown 停止聚合器与限流器，并在限期内等待后台任务汇合
func (s *Service) Shutdown(ctx context.Context) {
	s.collector.Stop()
	s.limiter.Close()

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.L().Info("Forward coordinator drained")
	case <-ctx.Done():
		logger.L().Warn("Shutdown deadline reached with background tasks still running")
	}
}

// groupCaption 取相册内首个非空说明文字
func groupCaption(parts []*models.SourceMessage) string {
	for _, part := range parts {
		if part.Caption != "" {
			return part.Caption
		}
	}
	return ""
}

// stagedItem 打开暂存文件为一次性的发送条目
func stagedItem(file *media.StagedFile, caption string) (provider.MediaItem, *os.File, error) {
	switch file.Kind {
	case models.MediaKindPhoto, models.MediaKindVideo, models.MediaKindDocument, models.MediaKindSticker:
	default:
		return provider.MediaItem{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, file.Kind)
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return provider.MediaItem{}, nil, fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	return provider.MediaItem{
		Kind:    file.Kind,
		Name:    filepath.Base(file.Path),
		Data:    f,
		Caption: caption,
	}, f, nil
}
