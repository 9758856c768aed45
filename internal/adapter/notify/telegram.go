package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
)

// Telegram sends run-completion notifications to a chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(cfg *config.TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	var chatID int64
	fmt.Sscanf(cfg.ChatID, "%d", &chatID)

	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) NotifyRun(ctx context.Context, result *domain.BackupResult) error {
	icon := "✅"
	if result.Status != domain.StatusSuccess {
		icon = "❌"
	}

	message := fmt.Sprintf(
		"%s Backup %s\n\n"+
			"📁 Job: %s\n"+
			"🗂 Set: %s (%s)\n"+
			"📦 Archives: %d\n"+
			"📊 Files: %d (%.2f MB)\n"+
			"🕐 Duration: %s",
		icon, result.Summary(),
		result.JobName,
		result.SetID, result.RunType,
		result.ArchiveCount,
		result.FileCount, float64(result.ByteCount)/(1024*1024),
		result.Duration.Round(1e9),
	)

	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
