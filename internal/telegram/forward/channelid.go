package forward

import (
	"strconv"
	"strings"
)

// 频道 ID 以归一化形式落库（去掉 -100 寻址前缀），
// 只在转发边界还原为协议原生形式。两个函数都是无副作用的纯变换。

// NormalizeChannelID 统一频道 ID 格式，确保存储时不带 -100 前缀
func NormalizeChannelID(id int64) int64 {
	s := strconv.FormatInt(id, 10)
	if rest, ok := strings.CutPrefix(s, "-100"); ok {
		if v, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return v
		}
	}
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		if v, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return v
		}
	}
	return id
}

// NativeChannelID 把归一化 ID 还原为带 -100 前缀的原生寻址形式
func NativeChannelID(normalized int64) int64 {
	if normalized <= 0 {
		// 已是原生形式或非法值，原样返回
		return normalized
	}
	v, err := strconv.ParseInt("-100"+strconv.FormatInt(normalized, 10), 10, 64)
	if err != nil {
		return normalized
	}
	return v
}
