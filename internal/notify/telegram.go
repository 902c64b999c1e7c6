package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// maxListed bounds the alerts rendered into one message.
const maxListed = 10

type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a digest of high-priority alerts to one chat.
type Telegram struct {
	bot         chatSender
	chatID      int64
	minPriority model.Priority
	maxRetries  int
	retryDelay  time.Duration
	log         zerolog.Logger
}

// NewTelegram connects the bot for cfg.
func NewTelegram(cfg config.TelegramConfig, log zerolog.Logger) (*Telegram, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, cfg, log), nil
}

func newTelegram(bot chatSender, chatID int64, cfg config.TelegramConfig, log zerolog.Logger) *Telegram {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	minP := model.Priority(cfg.MinPriority)
	if minP < model.PriorityLow || minP > model.PriorityCritical {
		minP = model.PriorityCritical
	}
	return &Telegram{
		bot:         bot,
		chatID:      chatID,
		minPriority: minP,
		maxRetries:  retries,
		retryDelay:  time.Second,
		log:         log.With().Str("component", "telegram").Logger(),
	}
}

// Name implements alerts.Notifier.
func (t *Telegram) Name() string { return "telegram" }

// Notify sends one message listing the alerts at or above the minimum
// priority. Nothing is sent when none qualify.
func (t *Telegram) Notify(ctx context.Context, alerts []model.Alert) error {
	var picked []model.Alert
	for _, a := range alerts {
		if a.Priority >= t.minPriority {
			picked = append(picked, a)
		}
	}
	if len(picked) == 0 {
		return nil
	}
	return t.send(ctx, formatAlerts(picked))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := range t.maxRetries {
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		t.log.Debug().Err(err).Int("attempt", i+1).Msg("telegram send failed")
		if i == t.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.maxRetries, lastErr)
}

func formatAlerts(alerts []model.Alert) string {
	var b strings.Builder
	var total float64
	for _, a := range alerts {
		total += a.Details.LeakageAmount
	}
	fmt.Fprintf(&b, "🚨 *Revenue leakage alerts* \\(%d\\)\n", len(alerts))
	fmt.Fprintf(&b, "Total leakage: *%s*\n\n", escapeMarkdownV2(fmt.Sprintf("%.2f", total)))
	for i, a := range alerts {
		if i == maxListed {
			fmt.Fprintf(&b, "_\\.\\.\\. and %d more_\n", len(alerts)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d\\. *%s* %s\n", i+1,
			escapeMarkdownV2(a.Priority.String()),
			escapeMarkdownV2(string(a.AnomalyType)))
		fmt.Fprintf(&b, "   visit `%s` leakage %s\n",
			escapeMarkdownV2(a.VisitID),
			escapeMarkdownV2(fmt.Sprintf("%.2f", a.Details.LeakageAmount)))
		if a.Description != "" {
			fmt.Fprintf(&b, "   %s\n", escapeMarkdownV2(a.Description))
		}
	}
	return b.String()
}

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
