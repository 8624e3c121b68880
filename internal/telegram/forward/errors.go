package forward

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
)

// 转发流水线错误分类
// 目标端错误只影响当前配对，绝不中断对其余配对的扇出
var (
	ErrDownloadFailure         = errors.New("media download failure")
	ErrUnsupportedMedia        = errors.New("unsupported media")
	ErrDestinationUnauthorized = errors.New("destination unauthorized")
	ErrDestinationNotFound     = errors.New("destination not found")
	ErrRateLimited             = errors.New("rate limited")
	ErrFormattingRejected      = errors.New("formatting rejected")
	ErrRelationNotFound        = errors.New("relation not found")
	ErrFilterEvaluation        = errors.New("filter evaluation error")
)

// isUnauthorized 目标端拒绝访问（bot 被踢、权限不足、token 失效）
// 该配对对本消息永久跳过，不重试
func isUnauthorized(err error) bool {
	return errors.Is(err, bot.ErrorForbidden) || errors.Is(err, bot.ErrorUnauthorized)
}

// isNotFound 目标不存在或已迁移
func isNotFound(err error) bool {
	if errors.Is(err, bot.ErrorNotFound) {
		return true
	}
	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return true
	}
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "chat not found")
}

// isRateLimited 触发目标端限流
func isRateLimited(err error) bool {
	var tooMany *bot.TooManyRequestsError
	return errors.As(err, &tooMany)
}

// isFormattingRejected 富文本解析被拒，可降级为纯文本一次性重试
func isFormattingRejected(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "parse entities")
}

// isForwardRejected 原生转发被协议拒绝（可见性/受保护内容/协议限制）
// 这类拒绝应落入合成消息兜底路径，而非按配对失败处理
func isForwardRejected(err error) bool {
	if isUnauthorized(err) || isNotFound(err) {
		return false
	}
	return errors.Is(err, bot.ErrorBadRequest)
}

// wrapSendError 把目标端原始错误归入错误分类，保留原始信息
func wrapSendError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isUnauthorized(err):
		return fmt.Errorf("%w: %v", ErrDestinationUnauthorized, err)
	case isNotFound(err):
		return fmt.Errorf("%w: %v", ErrDestinationNotFound, err)
	case isRateLimited(err):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case isFormattingRejected(err):
		return fmt.Errorf("%w: %v", ErrFormattingRejected, err)
	default:
		return err
	}
}
