package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/models"
)

// downloadChunkSize 每次读取的块大小，限制单次下载的内存占用
const downloadChunkSize = 16 << 20 // 16 MiB

// cacheEntry 短期下载去重缓存条目，按条目过期
type cacheEntry struct {
	file    *StagedFile
	expires time.Time
}

// TransferWorker 把源端媒体流式落盘到暂存目录
// 与文本转发路径解耦，多个目标在短窗口内需要同一媒体时复用同一份下载
type TransferWorker struct {
	staging  *Staging
	timeout  time.Duration
	sem      chan struct{}
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewTransferWorker 创建媒体传输器
// concurrency 限制同时进行的下载数，timeout 为单次下载上限
func NewTransferWorker(staging *Staging, concurrency int, timeout time.Duration) *TransferWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TransferWorker{
		staging:  staging,
		timeout:  timeout,
		sem:      make(chan struct{}, concurrency),
		cacheTTL: 5 * time.Minute,
		cache:    make(map[string]cacheEntry),
	}
}

// Download 下载消息媒体到暂存目录
// 同一媒体在缓存窗口内再次请求时直接复用已落盘文件
// 每次成功返回都持有该文件的一个引用，调用方用完通过 Staging.Remove 释放
func (w *TransferWorker) Download(ctx context.Context, msg *models.SourceMessage) (*StagedFile, error) {
	if msg.Media == nil {
		return nil, fmt.Errorf("message %d has no media reference", msg.ID)
	}

	identity := msg.Media.Identity()
	if file := w.cached(identity); file != nil {
		logger.L().Debugf("Media %s served from staging cache: %s", identity, file.Path)
		return file, nil
	}

	select {
	case w.sem <- struct{}{}:
		defer func() { <-w.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	file, err := w.fetch(ctx, msg)
	if err != nil {
		return nil, err
	}
	w.staging.Acquire(file.Path)

	w.mu.Lock()
	w.cache[identity] = cacheEntry{file: file, expires: time.Now().Add(w.cacheTTL)}
	w.mu.Unlock()

	return file, nil
}

// fetch 流式下载并登记暂存文件
func (w *TransferWorker) fetch(ctx context.Context, msg *models.SourceMessage) (*StagedFile, error) {
	stream, err := msg.Media.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open media stream: %w", err)
	}
	defer stream.Close()

	out, err := w.staging.Create()
	if err != nil {
		return nil, err
	}

	staged := &StagedFile{
		Path:            out.Name(),
		SourceChatID:    msg.ChatID,
		SourceMessageID: msg.ID,
		Kind:            msg.Kind,
		CreatedAt:       time.Now(),
	}
	w.staging.Track(staged)

	written, err := w.copyWithProgress(out, stream, msg.Media.Size(), msg.ID)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		// 下载中断的残留文件交给定时清理兜底
		return nil, fmt.Errorf("failed to stage media for message %d: %w", msg.ID, err)
	}
	staged.Size = written

	if staged.Kind == models.MediaKindUnknown {
		staged.Kind = detectKind(staged.Path)
	}

	logger.L().Infof("Media staged: message_id=%d, path=%s, size=%d, kind=%s",
		msg.ID, staged.Path, staged.Size, staged.Kind)
	return staged, nil
}

// copyWithProgress 分块拷贝并按约 20% 步进记录进度
func (w *TransferWorker) copyWithProgress(dst io.Writer, src io.Reader, total int64, messageID int) (int64, error) {
	buf := make([]byte, downloadChunkSize)
	var written int64
	lastStep := 0

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)

			if total > 0 {
				step := int(written * 100 / total / 20)
				if step > lastStep {
					lastStep = step
					logger.L().Infof("Download progress: message_id=%d, %d%%", messageID, step*20)
				}
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// cached 查询去重缓存，过期或文件已被清理的条目剔除
func (w *TransferWorker) cached(identity string) *StagedFile {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for key, entry := range w.cache {
		if now.After(entry.expires) {
			delete(w.cache, key)
		}
	}

	entry, ok := w.cache[identity]
	if !ok {
		return nil
	}
	// 在登记表的锁内取引用，失败说明文件已被释放或清理
	if !w.staging.AcquireIfPresent(entry.file.Path) {
		delete(w.cache, identity)
		return nil
	}
	return entry.file
}

// detectKind 嗅探落盘文件推断媒体类型，入口处无法判定时使用
func detectKind(path string) models.MediaKind {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		logger.L().Warnf("Failed to detect mime type of %s: %v", path, err)
		return models.MediaKindDocument
	}

	switch {
	case strings.HasPrefix(mime.String(), "image/"):
		return models.MediaKindPhoto
	case strings.HasPrefix(mime.String(), "video/"):
		return models.MediaKindVideo
	default:
		return models.MediaKindDocument
	}
}
