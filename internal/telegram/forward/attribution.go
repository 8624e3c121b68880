package forward

import (
	"fmt"
	"strings"

	"tg_forwarder/internal/telegram/models"
)

// attributionSeparator 署名头与正文之间的分隔线
const attributionSeparator = "______________________________"

// maxQuoteRunes 内联引用的最大长度
const maxQuoteRunes = 160

// sourceKindLabel 源聊天类型的展示标签
func sourceKindLabel(msg *models.SourceMessage) (label, link string) {
	switch {
	case msg.ChatUsername != "":
		return "Public Channel", "@" + msg.ChatUsername
	case msg.InviteLink != "":
		return "Private Channel (Invite Link Available)", msg.InviteLink
	}

	switch msg.ChatType {
	case "group":
		return "Group", ""
	case "supergroup":
		return "Supergroup", ""
	case "channel":
		return "Channel", ""
	default:
		return "Private Channel", ""
	}
}

// composeSynthetic 组装合成消息正文：
// 署名头（标题、类型分类、可选公开句柄、时间戳）、可选的内联引用、原始内容
func composeSynthetic(msg *models.SourceMessage, inlineQuote string) string {
	title := msg.ChatTitle
	if title == "" {
		title = "Unknown Channel"
	}

	label, link := sourceKindLabel(msg)
	sourceInfo := label
	if link != "" {
		sourceInfo += "\n" + link
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Forwarded from: %s\n%s\n%s\n%s\n\n",
		title, sourceInfo, msg.Date.UTC().Format("2006-01-02 15:04 UTC"), attributionSeparator)

	if inlineQuote != "" {
		b.WriteString(inlineQuote)
		b.WriteString("\n\n")
	}

	b.WriteString(msg.Content())
	return b.String()
}

// composeQuote 生成被回复消息的内联截断引用
func composeQuote(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	runes := []rune(text)
	if len(runes) > maxQuoteRunes {
		text = string(runes[:maxQuoteRunes]) + "…"
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
