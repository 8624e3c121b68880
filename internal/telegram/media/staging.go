package media

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/models"
)

// StagedFile 已落盘的暂存媒体文件
type StagedFile struct {
	Path            string
	SourceChatID    int64
	SourceMessageID int
	Kind            models.MediaKind
	Size            int64
	CreatedAt       time.Time
}

// Staging 暂存文件登记表
// 文件创建即登记；转发成功立即删除，失败的由定时清理按保留时长兜底，
// 保证磁盘占用有界
type Staging struct {
	mu        sync.Mutex
	dir       string
	retention time.Duration
	files     map[string]*StagedFile
	refs      map[string]int
	cron      *cron.Cron
}

// NewStaging 创建暂存登记表并确保目录存在
func NewStaging(dir string, retention time.Duration) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir %s: %w", dir, err)
	}
	return &Staging{
		dir:       dir,
		retention: retention,
		files:     make(map[string]*StagedFile),
		refs:      make(map[string]int),
	}, nil
}

// Create 在暂存目录创建新文件
func (s *Staging) Create() (*os.File, error) {
	f, err := os.CreateTemp(s.dir, "media-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	return f, nil
}

// Track 登记一个暂存文件
func (s *Staging) Track(file *StagedFile) {
	s.mu.Lock()
	s.files[file.Path] = file
	s.mu.Unlock()
	logger.L().Debugf("Staged file tracked: path=%s, size=%d", file.Path, file.Size)
}

// Acquire 增加文件的使用引用
// 同一暂存文件可被多个配对共享，Remove 只在最后一个引用释放时真正删除
func (s *Staging) Acquire(path string) {
	s.mu.Lock()
	s.refs[path]++
	s.mu.Unlock()
}

// AcquireIfPresent 仅当文件仍在登记表中时增加引用
// 与 Remove 持同一把锁判定，拿到引用的文件不会被并发释放删掉
func (s *Staging) AcquireIfPresent(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; !ok {
		return false
	}
	s.refs[path]++
	return true
}

// Remove 释放一个引用，最后一个引用释放时删除文件并移除登记
// 文件已不存在时视为成功
func (s *Staging) Remove(path string) error {
	s.mu.Lock()
	if n := s.refs[path]; n > 1 {
		s.refs[path] = n - 1
		s.mu.Unlock()
		logger.L().Debugf("Staged file still referenced: path=%s, refs=%d", path, n-1)
		return nil
	}
	delete(s.refs, path)
	delete(s.files, path)
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file %s: %w", path, err)
	}
	logger.L().Debugf("Staged file removed: path=%s", path)
	return nil
}

// Sweep 删除超过保留时长的暂存文件（不论转发结果），返回删除数量
func (s *Staging) Sweep() int {
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	var expired []string
	for path, file := range s.files {
		if file.CreatedAt.Before(cutoff) {
			expired = append(expired, path)
		}
	}
	for _, path := range expired {
		delete(s.files, path)
		delete(s.refs, path)
	}
	s.mu.Unlock()

	removed := 0
	for _, path := range expired {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.L().Errorf("Failed to sweep staged file %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.L().Infof("Staged file sweep removed %d expired files", removed)
	}
	return removed
}

// StartSweeper 启动定时清理
// SkipIfStillRunning 保证清理任务不与自身重叠
func (s *Staging) StartSweeper(interval time.Duration) error {
	if s.cron != nil {
		return nil
	}

	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule staging sweep: %w", err)
	}
	s.cron.Start()

	logger.L().Infof("Staging sweeper started: interval=%s, retention=%s", interval, s.retention)
	return nil
}

// Close 停止清理任务并删除所有剩余暂存文件
func (s *Staging) Close() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}

	s.mu.Lock()
	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	s.files = make(map[string]*StagedFile)
	s.refs = make(map[string]int)
	s.mu.Unlock()

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.L().Errorf("Failed to remove staged file %s on shutdown: %v", path, err)
		}
	}
	if len(paths) > 0 {
		logger.L().Infof("Removed %d staged files on shutdown", len(paths))
	}
}
