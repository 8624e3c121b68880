package provider

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"tg_forwarder/internal/telegram/models"
)

// BotDestination 基于 Bot API 的目标端实现
type BotDestination struct {
	bot *bot.Bot
}

// NewBotDestination 创建 Bot API 目标端实例
func NewBotDestination(b *bot.Bot) *BotDestination {
	return &BotDestination{bot: b}
}

// NativeForward 原生转发
func (d *BotDestination) NativeForward(ctx context.Context, destChatID int64, sourceChatID int64, messageID int) (int, error) {
	msg, err := d.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     destChatID,
		FromChatID: sourceChatID,
		MessageID:  messageID,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendText 发送文本消息
func (d *BotDestination) SendText(ctx context.Context, destChatID int64, text string, opts SendOptions) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: destChatID,
		Text:   text,
	}
	if !opts.PlainText {
		params.ParseMode = botModels.ParseModeHTML
	}
	if opts.DisablePreview {
		params.LinkPreviewOptions = &botModels.LinkPreviewOptions{IsDisabled: boolPtr(true)}
	}
	if opts.ReplyTo > 0 {
		params.ReplyParameters = &botModels.ReplyParameters{MessageID: opts.ReplyTo}
	}

	msg, err := d.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendMedia 按入口处判定的媒体类型选择发送方式
// unknown 一律按 document 发送
func (d *BotDestination) SendMedia(ctx context.Context, destChatID int64, item MediaItem, opts SendOptions) (int, error) {
	var replyParams *botModels.ReplyParameters
	if opts.ReplyTo > 0 {
		replyParams = &botModels.ReplyParameters{MessageID: opts.ReplyTo}
	}

	input := &botModels.InputFileUpload{Filename: item.Name, Data: item.Data}

	var (
		msg *botModels.Message
		err error
	)
	switch item.Kind {
	case models.MediaKindPhoto:
		msg, err = d.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:          destChatID,
			Photo:           input,
			Caption:         item.Caption,
			ReplyParameters: replyParams,
		})
	case models.MediaKindVideo:
		msg, err = d.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:          destChatID,
			Video:           input,
			Caption:         item.Caption,
			ReplyParameters: replyParams,
		})
	case models.MediaKindSticker:
		msg, err = d.bot.SendSticker(ctx, &bot.SendStickerParams{
			ChatID:          destChatID,
			Sticker:         input,
			ReplyParameters: replyParams,
		})
	case models.MediaKindDocument, models.MediaKindUnknown:
		msg, err = d.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:          destChatID,
			Document:        input,
			Caption:         item.Caption,
			ReplyParameters: replyParams,
		})
	default:
		return 0, fmt.Errorf("cannot send media of kind %q", item.Kind)
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendMediaGroup 发送有序媒体组
func (d *BotDestination) SendMediaGroup(ctx context.Context, destChatID int64, items []MediaItem, opts SendOptions) ([]int, error) {
	media := make([]botModels.InputMedia, 0, len(items))
	for i, item := range items {
		attach := fmt.Sprintf("attach://file%d", i)
		switch item.Kind {
		case models.MediaKindPhoto:
			media = append(media, &botModels.InputMediaPhoto{
				Media:           attach,
				Caption:         item.Caption,
				MediaAttachment: item.Data,
			})
		case models.MediaKindVideo:
			media = append(media, &botModels.InputMediaVideo{
				Media:           attach,
				Caption:         item.Caption,
				MediaAttachment: item.Data,
			})
		default:
			media = append(media, &botModels.InputMediaDocument{
				Media:           attach,
				Caption:         item.Caption,
				MediaAttachment: item.Data,
			})
		}
	}

	params := &bot.SendMediaGroupParams{
		ChatID: destChatID,
		Media:  media,
	}
	if opts.ReplyTo > 0 {
		params.ReplyParameters = &botModels.ReplyParameters{MessageID: opts.ReplyTo}
	}

	messages, err := d.bot.SendMediaGroup(ctx, params)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// AttachMedia 就地把媒体挂到已发送的消息上
func (d *BotDestination) AttachMedia(ctx context.Context, destChatID int64, messageID int, item MediaItem) error {
	attach := "attach://file0"

	var media botModels.InputMedia
	switch item.Kind {
	case models.MediaKindPhoto:
		media = &botModels.InputMediaPhoto{Media: attach, Caption: item.Caption, MediaAttachment: item.Data}
	case models.MediaKindVideo:
		media = &botModels.InputMediaVideo{Media: attach, Caption: item.Caption, MediaAttachment: item.Data}
	default:
		media = &botModels.InputMediaDocument{Media: attach, Caption: item.Caption, MediaAttachment: item.Data}
	}

	_, err := d.bot.EditMessageMedia(ctx, &bot.EditMessageMediaParams{
		ChatID:    destChatID,
		MessageID: messageID,
		Media:     media,
	})
	return err
}

// DeleteMessage 删除目标端消息
func (d *BotDestination) DeleteMessage(ctx context.Context, destChatID int64, messageID int) error {
	_, err := d.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    destChatID,
		MessageID: messageID,
	})
	return err
}

func boolPtr(v bool) *bool { return &v }
