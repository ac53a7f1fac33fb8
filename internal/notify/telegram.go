package notify

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobharvest-engine/internal/domain"
)

// TelegramSink pushes high-scoring admitted jobs to a chat. Jobs below
// MinScore are admitted but not pushed.
type TelegramSink struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	minScore int
}

func NewTelegramSink(token string, chatID int64, minScore int) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	if minScore <= 0 {
		minScore = 85
	}
	return &TelegramSink{bot: bot, chatID: chatID, minScore: minScore}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Deliver(_ context.Context, job domain.AdmittedJob) error {
	if job.Score < t.minScore {
		return nil
	}
	text := fmt.Sprintf(
		"🎯 <b>%s</b> (%d)\n🏢 %s\n%s\n🔗 <a href=\"%s\">Apply</a>",
		html.EscapeString(job.Title),
		job.Score,
		html.EscapeString(job.Company),
		html.EscapeString(job.Justification),
		job.CanonicalURL,
	)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
