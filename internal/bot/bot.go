// Package bot is the Telegram transport: it routes commands and button
// presses to the preference editor and delivers notifications.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsbot/internal/model"
	"newsbot/internal/preference"
	"newsbot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	editor  *preference.Editor
	store   storage.SubscriptionStore
	catalog model.Catalog
	log     *slog.Logger

	wg sync.WaitGroup
}

// New creates a Bot with the given Telegram token.
func New(token string, editor *preference.Editor, store storage.SubscriptionStore, catalog model.Catalog, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		editor:  editor,
		store:   store,
		catalog: catalog,
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every in-flight update has been handled. Updates are handled
// concurrently; the editor serializes actions of the same user.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handle update panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.handleCommand(ctx, update.Message)
}

// Send delivers a notification to the given chat.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// sendMenu posts a menu as a new message.
func (b *Bot) sendMenu(chatID int64, m preference.Menu) {
	msg := tgbotapi.NewMessage(chatID, m.Text)
	if len(m.Rows) > 0 {
		msg.ReplyMarkup = keyboard(b.catalog, m)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send menu", "chat_id", chatID, "error", err)
	}
}

// editMenu redraws a menu in place. A menu without buttons drops the keyboard.
func (b *Bot) editMenu(chatID int64, messageID int, m preference.Menu) {
	var edit tgbotapi.Chattable
	if len(m.Rows) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, m.Text, keyboard(b.catalog, m))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, m.Text)
	}
	if _, err := b.api.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return
		}
		b.log.Error("edit menu", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "settings":
		b.handleSettings(ctx, chatID)
	case "mysubs":
		b.handleMySubs(ctx, chatID)
	case "help":
		b.reply(chatID, helpText)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
