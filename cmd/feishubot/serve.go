package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"github.com/lojasmm/feishubot/internal/bot"
	"github.com/lojasmm/feishubot/internal/config"
	"github.com/lojasmm/feishubot/internal/dedup"
	"github.com/lojasmm/feishubot/internal/feishu"
	"github.com/lojasmm/feishubot/internal/intent"
	"github.com/lojasmm/feishubot/internal/logging"
	"github.com/lojasmm/feishubot/internal/scheduler"
	"github.com/lojasmm/feishubot/internal/server"
	"github.com/lojasmm/feishubot/internal/session"
)

const (
	sessionCleanupInterval = 30 * time.Minute
	sessionMaxIdle         = time.Hour
)

var dialogflowScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/dialogflow",
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logging.Setup(cfg.LogLevel, cfg.LogPretty)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("app_id", cfg.AppID).
		Str("dialogflow_project", cfg.DialogflowProjectID).
		Str("nlu_session_mode", cfg.NLUSessionMode).
		Str("dedup_backend", cfg.DedupBackend).
		Str("webhook_path", cfg.WebhookPath).
		Msg("feishubot: starting")

	store, err := dedup.Open(ctx, dedup.Options{
		Backend:       cfg.DedupBackend,
		BoltPath:      cfg.DedupPath(),
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TTL:           cfg.DedupTTL,
	})
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	defer store.Close()

	nluHTTP, err := google.DefaultClient(ctx, dialogflowScopes...)
	if err != nil {
		return fmt.Errorf("dialogflow credentials: %w", err)
	}
	nlu := intent.NewClient(intent.Options{
		BaseURL:     cfg.DialogflowBaseURL,
		ProjectID:   cfg.DialogflowProjectID,
		SessionID:   cfg.DialogflowSessionID,
		Language:    cfg.DialogflowLanguage,
		SessionMode: cfg.NLUSessionMode,
	}, nluHTTP, logging.Component("intent"))

	tokens := feishu.NewTokenFetcher(cfg.FeishuBaseURL, cfg.AppID, cfg.AppSecret, cfg.FeishuTokenCache, logging.Component("token"))
	sender := feishu.NewClient(cfg.FeishuBaseURL, cfg.FeishuSendRPS, cfg.FeishuSendBurst)
	sessions := session.NewManager()

	dispatcher := bot.NewDispatcher(bot.Config{
		Workers:      cfg.DispatchWorkers,
		QueueSize:    cfg.DispatchQueue,
		NLUTimeout:   cfg.NLUTimeout,
		SendTimeout:  cfg.FeishuSendTimeout,
		FallbackText: cfg.FallbackText,
		NLUErrorText: cfg.NLUErrorText,
	}, store, tokens, nlu, sender, sessions, logging.Component("dispatch"))

	sched, err := scheduler.New(logging.Component("scheduler"))
	if err != nil {
		return err
	}
	if err := sched.PurgeDedup(store, cfg.DedupPurgeInterval); err != nil {
		return err
	}
	if err := sched.CleanupSessions(sessions, sessionCleanupInterval, sessionMaxIdle); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown")
		}
	}()

	webhook := feishu.NewWebhookHandler(
		feishu.NewVerifier(cfg.VerificationToken, logging.Component("verifier")),
		dispatcher,
		logging.Component("webhook"),
	)
	srv := server.New(cfg.Addr(), server.NewRouter(cfg.WebhookPath, webhook.HandleIncoming), logging.Component("http"))

	err = runRelay(ctx, srv.Run, dispatcher.Run)
	log.Info().Msg("feishubot: stopped")
	return err
}

// runRelay runs the HTTP server and the dispatcher until ctx is canceled or
// either fails. The dispatcher keeps accepting work until the server has
// finished draining, so a webhook acked during shutdown is still queued.
func runRelay(ctx context.Context, serveHTTP, runDispatch func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g.Go(func() error {
		defer stopDispatch()
		return serveHTTP(gctx)
	})
	g.Go(func() error { return runDispatch(dispatchCtx) })
	return g.Wait()
}
