package bot

import (
	"context"

	"newsbot/internal/model"
	"newsbot/internal/preference"
)

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	r, err := b.editor.Start(ctx, chatID)
	if err != nil {
		b.log.Error("start preferences", "chat_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong, please try again later.")
		return
	}
	b.reply(chatID, "Welcome to News Bot!\n\nPick the sources you want to follow and the categories you care about. Use /help for all commands.")
	b.sendMenu(chatID, r.Menu)
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64) {
	r, err := b.editor.Settings(ctx, chatID)
	if err != nil {
		b.log.Error("open settings", "chat_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong, please try again later.")
		return
	}
	b.sendMenu(chatID, r.Menu)
}

func (b *Bot) handleMySubs(ctx context.Context, chatID int64) {
	prefs, err := b.storedPreferences(ctx, chatID)
	if err != nil {
		b.log.Error("load preferences", "chat_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong, please try again later.")
		return
	}
	b.reply(chatID, preference.FormatPreferences(prefs))
}

// storedPreferences reads the saved subscription, keeping catalog order.
func (b *Bot) storedPreferences(ctx context.Context, chatID int64) (model.Preferences, error) {
	sources, err := b.store.Sources(ctx, chatID)
	if err != nil {
		return model.Preferences{}, err
	}
	selected := make(map[string]bool, len(sources))
	for _, s := range sources {
		selected[s] = true
	}

	prefs := model.Preferences{Categories: make(map[string][]string)}
	for _, src := range b.catalog {
		if !selected[src.Name] {
			continue
		}
		cats, err := b.store.Categories(ctx, chatID, src.Name)
		if err != nil {
			return model.Preferences{}, err
		}
		prefs.Sources = append(prefs.Sources, src.Name)
		prefs.Categories[src.Name] = cats
	}
	return prefs, nil
}
