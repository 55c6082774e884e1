package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const longPollTimeout = 60

// Run long-polls the Bot API and dispatches every update until ctx is done.
// It returns after all in-flight handlers finished.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = longPollTimeout
	updates := api.GetUpdatesChan(cfg)

	b.log.Infof("Listening for updates as @%s", api.Self.UserName)
	defer b.Wait()

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if ev, ok := FromTelegram(u); ok {
				b.Dispatch(ctx, ev)
			}
		}
	}
}

// FromTelegram converts a Bot API update. It reports false for updates the
// bot has no handler for (edits, channel posts, plain text).
func FromTelegram(u tgbotapi.Update) (Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		ev := Update{CallbackID: cq.ID, CallbackData: cq.Data}
		if cq.From != nil {
			ev.UserID = cq.From.ID
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
		return ev, true
	case u.Message != nil && u.Message.IsCommand():
		m := u.Message
		ev := Update{Command: m.Command()}
		if m.From != nil {
			ev.UserID = m.From.ID
		}
		if m.Chat != nil {
			ev.ChatID = m.Chat.ID
		}
		return ev, true
	}
	return Update{}, false
}
