package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// telegramMaxMessage is Telegram's message length limit.
const telegramMaxMessage = 4096

// messageSender is the part of *telego.Bot the notifier uses.
type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramNotifier posts alerts to one chat.
type TelegramNotifier struct {
	sender messageSender
	chatID int64
}

// NewTelegramNotifier creates a notifier for the bot token and chat.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{sender: bot, chatID: chatID}, nil
}

// Notify implements Notifier.
func (t *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	return t.Send(ctx, alert.Text())
}

// Send posts text, split into chunks Telegram accepts.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, telegramMaxMessage) {
		if _, err := t.sender.SendMessage(ctx, tu.Message(tu.ID(t.chatID), chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// chunkMessage splits text into pieces of at most maxLen bytes, preferring
// newline boundaries in the second half of a piece.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
