package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/digkill/hydrastudio/internal/api"
	"github.com/digkill/hydrastudio/internal/config"
	"github.com/digkill/hydrastudio/internal/database"
	"github.com/digkill/hydrastudio/internal/gemini"
	"github.com/digkill/hydrastudio/internal/generation"
	"github.com/digkill/hydrastudio/internal/identity"
	"github.com/digkill/hydrastudio/internal/localstore"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/notify"
	"github.com/digkill/hydrastudio/internal/repository"
	"github.com/digkill/hydrastudio/internal/service"
	"github.com/digkill/hydrastudio/internal/session"
	"github.com/digkill/hydrastudio/internal/state"
	"github.com/digkill/hydrastudio/internal/storage"
	"github.com/digkill/hydrastudio/pkg/logger"
)

func newServeCommand(load func() (config.Config, error)) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the studio API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply the schema on start")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, migrate bool) error {
	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer db.Close()

	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
	}

	local, err := localstore.OpenSQLite(ctx, cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open local state: %w", err)
	}
	defer local.Close()
	records := localstore.NewRecords(local)

	profileRepo := repository.NewProfileRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	admin := models.AdminRule{Suffix: cfg.AdminEmailSuffix, AllowList: cfg.AdminEmails}
	appState := state.New()

	provider := identity.NewLocal(identity.LocalConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    cfg.SessionTTL,
		OAuth:  identity.GoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
	}, accountRepo, records, logr)

	bridge := session.NewBridge(provider, profileRepo, appState, session.Options{
		SignupCredits: cfg.SignupCredits,
		Admin:         admin,
	}, logr)
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("session bridge: %w", err)
	}
	defer bridge.Stop()
	go provider.RunRefresher(ctx, cfg.SessionTTL/2)

	ledger := service.NewLedger(appState, profileRepo, logr)
	history := service.NewHistory(records, logr)
	history.Load(ctx)

	packages := service.NewPackages(packageRepo)
	if err := packages.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("ensure default packages: %w", err)
	}

	geminiClient, err := gemini.NewClient(ctx, cfg, logr)
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	defer geminiClient.Close()

	branding := service.NewBranding(appState, geminiClient, records, logr)
	branding.Load(ctx)

	var (
		materializer storage.Materializer
		blobs        *storage.Blobs
	)
	if cfg.S3Enabled() {
		s3, err := storage.NewS3(cfg)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		materializer = s3
	} else {
		blobs = storage.NewBlobs("/blobs")
		materializer = blobs
		logr.Info("video artifacts kept in process", "reason", "S3_BUCKET not set")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logr)
		if err != nil {
			return err
		}
		notifier = tg
	}

	genOpts := generation.Options{RefundOnFailure: cfg.RefundOnFailure, Notifier: notifier}
	poll := generation.PollPolicy{
		Initial:     cfg.PollInterval,
		Max:         cfg.PollMaxInterval,
		MaxAttempts: cfg.PollMaxAttempts,
	}
	generators := []*generation.Orchestrator{
		generation.NewOrchestrator(generation.NewImageStrategy(geminiClient), ledger, history, appState, genOpts, logr),
		generation.NewOrchestrator(
			generation.NewVideoStrategy(geminiClient, materializer, cfg.VideoResolution, poll, logr),
			ledger, history, appState, genOpts, logr),
	}

	server := api.NewServer(api.Options{
		Addr:           cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		SiteURL:        cfg.SiteURL,
	}, api.Deps{
		State:      appState,
		Identity:   provider,
		History:    history,
		Checkout:   service.NewCheckout(appState, ledger, paymentRepo, cfg.CheckoutDelay, logr),
		Profiles:   service.NewProfiles(appState, profileRepo),
		Branding:   branding,
		Packages:   packages,
		Generators: generators,
		Blobs:      blobs,
	}, logr)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logr.Info("studio stopped")
	return nil
}
