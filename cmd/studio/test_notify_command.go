package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digkill/hydrastudio/internal/config"
	"github.com/digkill/hydrastudio/internal/notify"
	"github.com/digkill/hydrastudio/pkg/logger"
)

func newTestNotifyCommand(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.TelegramBotToken == "" {
				return errors.New("TELEGRAM_BOT_TOKEN is not set")
			}
			n, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger.New(cfg.LogLevel))
			if err != nil {
				return err
			}
			if err := n.Notify(cmd.Context(), notify.Notice{Kind: "test", Prompt: "notification check", Email: "studio"}); err != nil {
				return fmt.Errorf("send notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
