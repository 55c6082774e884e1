package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends through the Bot API.
type Telegram struct {
	API *tgbotapi.BotAPI
}

// NewTelegram authenticates token against the Bot API.
func NewTelegram(token string) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram requires a bot token (set telegram.token in config)")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return &Telegram{API: api}, nil
}

func (t *Telegram) SendMessage(ctx context.Context, chat, text string, buttons ...Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(0, text)
	if err := setChat(&msg.BaseChat, chat); err != nil {
		return err
	}
	msg.ParseMode = ParseMode
	if kb := keyboard(buttons); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := t.API.Send(msg)
	return err
}

func (t *Telegram) SendPhoto(ctx context.Context, chat, photoURL, caption string, buttons ...Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(0, tgbotapi.FileURL(photoURL))
	if err := setChat(&photo.BaseChat, chat); err != nil {
		return err
	}
	photo.Caption = caption
	photo.ParseMode = ParseMode
	if kb := keyboard(buttons); kb != nil {
		photo.ReplyMarkup = *kb
	}
	_, err := t.API.Send(photo)
	return err
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.API.Request(tgbotapi.NewCallback(callbackID, ""))
	return err
}

func setChat(bc *tgbotapi.BaseChat, chat string) error {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return fmt.Errorf("empty chat id")
	}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		bc.ChatID = id
		return nil
	}
	if !strings.HasPrefix(chat, "@") {
		chat = "@" + chat
	}
	bc.ChannelUsername = chat
	return nil
}

func keyboard(buttons []Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		} else {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}
