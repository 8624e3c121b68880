package forward

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"

	"tg_forwarder/internal/logger"
)

// 策略名称常量
const (
	strategyNativeForward = "native-forward"
	strategySynthetic     = "synthetic-send"
	strategyPlainText     = "plain-text"
)

const (
	maxSendAttempts       = 3
	defaultRetryDelay     = 2 * time.Second
	maxExponentialBackoff = 30 * time.Second
)

// relayStrategy 转发策略：按序求值，被拒时可交给下一个策略兜底
type relayStrategy struct {
	name string
	send func(ctx context.Context) (int, error)

	// fallthroughOn 判定该错误是否应交给下一策略；nil 表示本策略失败即终止
	fallthroughOn func(err error) bool
}

// runStrategies 按序执行策略链
// 每个策略内部对可重试错误做有界退避重试；不可落入下一策略的错误终止整条链。
// 返回成功的消息 ID 与获胜策略名。
func runStrategies(ctx context.Context, destChatID int64, strategies []relayStrategy) (int, string, error) {
	var lastErr error

	for _, st := range strategies {
		msgID, err := attemptWithRetry(ctx, destChatID, st)
		if err == nil {
			return msgID, st.name, nil
		}

		if st.fallthroughOn != nil && st.fallthroughOn(err) {
			logger.L().Warnf("Strategy %s rejected for chat %d, trying next: %v", st.name, destChatID, err)
			lastErr = err
			continue
		}

		return 0, st.name, wrapSendError(err)
	}

	return 0, "", wrapSendError(lastErr)
}

// attemptWithRetry 执行单个策略，限流/瞬时错误做有界退避重试
func attemptWithRetry(ctx context.Context, destChatID int64, st relayStrategy) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		msgID, err := st.send(ctx)
		if err == nil {
			return msgID, nil
		}
		lastErr = err

		if !shouldRetrySend(err) || attempt == maxSendAttempts {
			return 0, lastErr
		}

		delay := retryDelay(err, attempt, destChatID)
		logger.L().Warnf("Strategy %s attempt %d failed for chat %d: %v, retrying in %v",
			st.name, attempt, destChatID, err, delay)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	return 0, lastErr
}

// shouldRetrySend 判定错误是否值得原地重试
// 权限、寻址和格式类错误重试无意义；限流与未知瞬时错误可重试
func shouldRetrySend(err error) bool {
	if err == nil {
		return false
	}
	if isRateLimited(err) {
		return true
	}
	if isUnauthorized(err) || isNotFound(err) || errors.Is(err, bot.ErrorBadRequest) {
		return false
	}
	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return false
	}
	return true
}

// retryDelay 计算重试等待时长
// 限流错误优先采用服务端给出的 retry-after，其余按指数退避，
// 叠加按目标 ID 决定的小抖动避免多目标齐步重试
func retryDelay(err error, attempt int, destChatID int64) time.Duration {
	jitter := retryJitter(destChatID)

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		if tooMany.RetryAfter > 0 {
			return time.Duration(tooMany.RetryAfter)*time.Second + jitter
		}
		return defaultRetryDelay + jitter
	}

	if attempt < 1 {
		attempt = 1
	}
	backoff := time.Duration(1<<(attempt-1)) * time.Second
	if backoff > maxExponentialBackoff {
		backoff = maxExponentialBackoff
	}
	return backoff
}

// retryJitter 按目标 ID 产生 200ms-1s 的确定性抖动
func retryJitter(destChatID int64) time.Duration {
	if destChatID < 0 {
		destChatID = -destChatID
	}
	return time.Duration(destChatID%5+1) * 200 * time.Millisecond
}
