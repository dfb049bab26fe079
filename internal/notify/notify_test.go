package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/pkg/logger"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifyVideo(t *testing.T) {
	s := &fakeSender{}
	n := &Telegram{api: s, chatID: 42, log: logger.Discard()}

	err := n.Notify(context.Background(), Notice{Kind: models.KindVideo, URL: "https://cdn.example.com/v.mp4", Prompt: "rain", Email: "fan@example.com"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].ChatID != 42 {
		t.Fatalf("sent = %+v", s.sent)
	}
	text := s.sent[0].Text
	for _, want := range []string{"video ready", "fan@example.com", "rain", "https://cdn.example.com/v.mp4"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text %q lacks %q", text, want)
		}
	}
}

func TestTelegramNotifyOmitsDataURL(t *testing.T) {
	s := &fakeSender{}
	n := &Telegram{api: s, chatID: 1, log: logger.Discard()}
	_ = n.Notify(context.Background(), Notice{Kind: models.KindImage, URL: "data:image/png;base64,AAAA", Prompt: "p"})
	if strings.Contains(s.sent[0].Text, "data:") {
		t.Fatalf("text = %q", s.sent[0].Text)
	}
}

func TestTelegramNotifyError(t *testing.T) {
	n := &Telegram{api: &fakeSender{err: errors.New("blocked")}, chatID: 1, log: logger.Discard()}
	if err := n.Notify(context.Background(), Notice{Kind: models.KindImage}); err == nil {
		t.Fatal("expected error")
	}
}
