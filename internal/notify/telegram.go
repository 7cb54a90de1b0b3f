// Package notify sends transaction notifications over Telegram.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// TelegramNotifier messages users about transactions created on their
// behalf, currently those materialized from recurring templates. Users
// opt in by saving a chat ID in their settings.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	storage storage.Repository
}

func NewTelegramNotifier(token string, st storage.Repository) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	slog.Info("Telegram notifier ready", "bot", bot.Self.UserName)
	return &TelegramNotifier{
		bot:     bot,
		storage: st,
	}, nil
}

// NotifyTransaction tells the owning user about a new transaction. Users
// without a chat ID configured are skipped silently.
func (n *TelegramNotifier) NotifyTransaction(ctx context.Context, txn core.Transaction) error {
	settings, err := n.storage.GetSettings(ctx, txn.UserID)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	if settings.TelegramChatID == 0 {
		return nil
	}

	direction := "Expense"
	if txn.Type == core.Income {
		direction = "Income"
	}
	text := fmt.Sprintf("%s recorded: %s %s on %s",
		direction, txn.Amount.String(), settings.Currency, txn.Date.String())
	if txn.Memo != "" {
		text += "\n" + txn.Memo
	}

	msg := tgbotapi.NewMessage(settings.TelegramChatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	slog.InfoContext(ctx, "Sent transaction notification",
		"user_id", txn.UserID,
		"transaction_id", txn.ID)
	return nil
}
