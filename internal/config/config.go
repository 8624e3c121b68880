package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"tg_forwarder/internal/logger"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string // Telegram Bot API Token
	MongoURI      string // MongoDB连接URI
	MongoDBName   string // MongoDB数据库名称

	StagingDir           string        // 媒体暂存目录
	StagedFileRetention  time.Duration // 暂存文件保留时长（超期由清理任务删除）
	MediaGroupSettle     time.Duration // 媒体组静默窗口（窗口内无新分片则视为完整）
	DownloadTimeout      time.Duration // 单次媒体下载超时
	ForwardRatePerSecond int           // 每秒最大发送数
}

// Load 从环境变量加载配置
// 如果存在 .env 文件则先载入其中的变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.L().Debug("No .env file found, using process environment")
	}

	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "tg_forwarder"
	}

	stagingDir := os.Getenv("STAGING_DIR")
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "tg_forwarder")
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		StagingDir:    stagingDir,
	}

	// 解析STAGED_FILE_RETENTION_MINUTES（默认60分钟）
	retention, err := parsePositiveInt("STAGED_FILE_RETENTION_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	cfg.StagedFileRetention = time.Duration(retention) * time.Minute

	// 解析MEDIA_GROUP_SETTLE_MS（默认2500毫秒）
	settle, err := parsePositiveInt("MEDIA_GROUP_SETTLE_MS", 2500)
	if err != nil {
		return nil, err
	}
	cfg.MediaGroupSettle = time.Duration(settle) * time.Millisecond

	// 解析DOWNLOAD_TIMEOUT_MINUTES（默认30分钟，容忍大文件）
	timeout, err := parsePositiveInt("DOWNLOAD_TIMEOUT_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.DownloadTimeout = time.Duration(timeout) * time.Minute

	// 解析FORWARD_RATE_PER_SECOND（默认30条/秒）
	rate, err := parsePositiveInt("FORWARD_RATE_PER_SECOND", 30)
	if err != nil {
		return nil, err
	}
	cfg.ForwardRatePerSecond = rate

	return cfg, nil
}

// parsePositiveInt 解析必须为正整数的环境变量，未设置时返回默认值
func parsePositiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if value < 1 {
		return 0, fmt.Errorf("%s must be >= 1, got %d", key, value)
	}
	return value, nil
}
