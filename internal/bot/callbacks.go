package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		b.answer(cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID

	action, err := ParseCallback(b.catalog, cb.Data)
	if err != nil {
		b.log.Warn("parse callback", "data", cb.Data, "chat_id", chatID, "error", err)
		b.answer(cb.ID, "This menu is outdated.")
		return
	}

	b.log.Info("callback",
		"action", action.Kind.String(),
		"source", action.Source,
		"category", action.Category,
		"chat_id", chatID,
		"user_id", cb.From.ID,
	)

	r, err := b.editor.Handle(ctx, chatID, action)
	if err != nil {
		b.log.Error("handle action", "action", action.Kind.String(), "chat_id", chatID, "error", err)
		if r.Notice == "" {
			b.answer(cb.ID, "Something went wrong, please try again.")
			return
		}
	}

	b.answer(cb.ID, r.Notice)
	if r.Menu.Text != "" {
		b.editMenu(chatID, cb.Message.MessageID, r.Menu)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}
