package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tienditabot/internal/channel"
	"tienditabot/internal/cloudapi"
	"tienditabot/internal/config"
	"tienditabot/internal/convlog"
	"tienditabot/internal/domain"
	"tienditabot/internal/events"
	"tienditabot/internal/intent"
	"tienditabot/internal/memory"
	"tienditabot/internal/metrics"
	"tienditabot/internal/notify"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger = newLogger(cfg.Log.SlogLevel())
	logger.Info("config loaded", "path", cfgPath, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := cloudapi.NewClient(cloudapi.ClientConfig{
		APIBase:            cfg.WhatsApp.APIBase,
		APIVersion:         cfg.WhatsApp.APIVersion,
		PhoneNumberID:      cfg.WhatsApp.PhoneNumberID,
		AccessToken:        cfg.WhatsApp.AccessToken,
		LanguageCode:       cfg.WhatsApp.LanguageCode,
		WelcomeTemplate:    cfg.Templates.Welcome,
		WelcomeHeaderImage: cfg.WhatsApp.WelcomeHeaderImage,
		Timeout:            time.Duration(cfg.WhatsApp.TimeoutSeconds) * time.Second,
		Logger:             logger,
	})

	var sinks convlog.Fanout
	if cfg.Store.Enabled {
		store, err := memory.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("conversation store: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
		logger.Info("conversation store enabled", "path", cfg.Store.Path)
	}
	if cfg.Events.URL != "" {
		pub, err := events.NewPublisher(events.Config{
			URL:        cfg.Events.URL,
			Exchange:   cfg.Events.Exchange,
			RoutingKey: cfg.Events.RoutingKey,
			Producer:   cfg.Events.Producer,
		}, logger)
		if err != nil {
			logger.Warn("event publishing disabled", "err", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
			logger.Info("event publishing enabled", "exchange", cfg.Events.Exchange)
		}
	}

	var notifier domain.HandoffNotifier
	if cfg.Notify.Telegram.Enabled() {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("telegram hand-off alerts disabled", "err", err)
		} else {
			notifier = tg
		}
	}

	var (
		collector  *metrics.Collector
		botMetrics *metrics.Bot
	)
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("tienditabot")
		botMetrics = metrics.NewBot(collector)
	}

	classifier := intent.NewClassifier(intent.FromConfig(cfg))
	dispatcher := channel.NewDispatcher(channel.DispatcherConfig{
		Classifier: classifier,
		Sender:     sender,
		Log:        convlog.NewBestEffort(sinks, logger),
		Notifier:   notifier,
		Metrics:    botMetrics,
		Logger:     logger,
	})

	server := channel.NewServer(channel.ServerConfig{
		Addr:        cfg.Server.Addr(),
		WebhookPath: cfg.WhatsApp.WebhookPath,
		SandboxPath: cfg.Server.SandboxPath,
		MetricsPath: cfg.Metrics.Endpoint,
		MediaFiles:  map[string]string{"welcome": cfg.Media.WelcomeImagePath},
		WhatsApp: channel.NewWhatsApp(channel.WhatsAppConfig{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
			Dispatcher:  dispatcher,
			Metrics:     botMetrics,
			Logger:      logger,
		}),
		Sandbox:   channel.NewSandbox(classifier, logger),
		Collector: collector,
		Logger:    logger,
	})

	if cfg.WhatsApp.AppSecret == "" {
		logger.Warn("whatsapp.appSecret not set, webhook signatures are not checked")
	}

	err = server.Run(ctx)
	logger.Info("shutdown complete")
	return err
}
