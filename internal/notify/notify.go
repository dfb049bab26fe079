// Package notify announces finished generations outside the studio.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/hydrastudio/internal/models"
)

// Notice describes a staged result.
type Notice struct {
	Kind   models.Kind
	URL    string
	Prompt string
	Email  string
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Nop drops every notice.
type Nop struct{}

func (Nop) Notify(context.Context, Notice) error { return nil }

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts notices to one chat through a bot.
type Telegram struct {
	api    sender
	chatID int64
	log    *slog.Logger
}

func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	log.Info("telegram notifier ready", "bot", api.Self.UserName, "chat_id", chatID)
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(_ context.Context, n Notice) error {
	msg := tgbotapi.NewMessage(t.chatID, formatNotice(n))
	msg.DisableWebPagePreview = n.Kind != models.KindVideo
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

func formatNotice(n Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hydra %s ready", n.Kind)
	if n.Email != "" {
		fmt.Fprintf(&b, " for %s", n.Email)
	}
	fmt.Fprintf(&b, "\nPrompt: %s", truncate(n.Prompt, 300))
	// data: URLs are too large for a chat message
	if strings.HasPrefix(n.URL, "http://") || strings.HasPrefix(n.URL, "https://") {
		fmt.Fprintf(&b, "\n%s", n.URL)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
