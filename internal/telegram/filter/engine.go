package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tg_forwarder/internal/logger"
	"tg_forwarder/internal/telegram/models"
	"tg_forwarder/internal/telegram/repository"
)

// Engine 按配对求值时段与内容规则
// 任何规则级错误都不会中断求值：出错的规则按不匹配处理并记录日志，
// 仓储读取失败时整体放行（可用性优先于严格性）
type Engine struct {
	registry repository.ChannelRegistry
}

// NewEngine 创建过滤引擎实例
func NewEngine(registry repository.ChannelRegistry) *Engine {
	return &Engine{registry: registry}
}

// Allow 判定某配对在当前时刻是否放行该内容
// 规则读取失败时放行（fail open）并把错误返回给调用方记录
func (e *Engine) Allow(ctx context.Context, pair *models.ChannelPair, now time.Time, content string) (bool, error) {
	windows, err := e.registry.GetTimeWindows(ctx, pair.ID)
	if err != nil {
		return true, fmt.Errorf("load time windows for pair %s: %w", pair.ID.Hex(), err)
	}
	if !EvaluateTime(windows, now) {
		return false, nil
	}

	rules, err := e.registry.GetFilterRules(ctx, pair.ID)
	if err != nil {
		return true, fmt.Errorf("load filter rules for pair %s: %w", pair.ID.Hex(), err)
	}

	return EvaluateContent(rules, content), nil
}

// EvaluateTime 求值时段规则
// 无启用规则时放行。按存储顺序逐条检查：规则的星期集不含当前星期则跳过；
// 当前时间落入区间时立即按规则模式返回（先匹配先生效）。
// 没有任何区间命中时默认放行。
func EvaluateTime(windows []*models.TimeWindow, now time.Time) bool {
	if len(windows) == 0 {
		return true
	}

	minute := now.Hour()*60 + now.Minute()
	day := now.Weekday()

	for _, w := range windows {
		if !w.AppliesOn(day) {
			continue
		}
		if w.Contains(minute) {
			return w.Mode == models.TimeWindowModeAllow
		}
	}

	return true
}

// EvaluateContent 求值内容规则
// 存在白名单规则时内容必须命中其中至少一条，否则拦截；
// 之后任一黑名单规则命中即拦截，与白名单结果无关。
func EvaluateContent(rules []*models.FilterRule, content string) bool {
	var whitelist, blacklist []*models.FilterRule
	for _, rule := range rules {
		switch rule.Kind {
		case models.FilterKindWhitelist:
			whitelist = append(whitelist, rule)
		case models.FilterKindBlacklist:
			blacklist = append(blacklist, rule)
		default:
			logger.L().Warnf("Unknown filter rule kind %q, rule %s skipped", rule.Kind, rule.ID.Hex())
		}
	}

	if len(whitelist) > 0 {
		matched := false
		for _, rule := range whitelist {
			if ruleMatches(rule, content) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, rule := range blacklist {
		if ruleMatches(rule, content) {
			return false
		}
	}

	return true
}

// ruleMatches 单条规则是否命中内容
// keyword 为大小写不敏感子串匹配；regex 为大小写不敏感正则搜索。
// 非法正则记录错误后按不匹配处理（按规则失败打开，而非整条消息）。
func ruleMatches(rule *models.FilterRule, content string) bool {
	switch rule.Mode {
	case models.FilterModeKeyword:
		return strings.Contains(strings.ToLower(content), strings.ToLower(rule.Pattern))
	case models.FilterModeRegex:
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			logger.L().Errorf("Invalid regex pattern %q in rule %s: %v", rule.Pattern, rule.ID.Hex(), err)
			return false
		}
		return re.MatchString(content)
	default:
		logger.L().Warnf("Unknown filter rule mode %q, rule %s skipped", rule.Mode, rule.ID.Hex())
		return false
	}
}
