package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalrelay/internal/bus"
	"signalrelay/internal/channel"
	"signalrelay/internal/config"
	"signalrelay/internal/dedup"
	"signalrelay/internal/relay"
	"signalrelay/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the relay (webhook or polling) with health and metrics endpoints",
		Long:  "Receives source channel posts, relays recognized signals and results to the target channel. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := config.RequireRelay(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	events := bus.NewEventBus(logger)
	events.On(bus.EventRelayFailed, func(e bus.Event) {
		logger.Debug("relay failure event", "category", e.Payload["category"])
	})
	messageBus := bus.New(cfg.General.BusBufferSize, logger)

	templates, err := relay.LoadTemplates(cfg.Relay.TemplatesFile)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	relayCfg := relay.Config{
		SourceChatID:  cfg.Relay.SourceChannelID.Int64(),
		TargetChatID:  cfg.Relay.TargetChannelID.Int64(),
		SignalVariant: cfg.Relay.SignalVariant,
		Templates:     templates,
		Events:        events,
		Logger:        logger,
	}

	// Stats store and its daily retention sweep.
	scheduler := cron.New()
	if cfg.Store.Enabled {
		st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
		if err != nil {
			return fmt.Errorf("stats store: %w", err)
		}
		defer st.Close()
		relayCfg.Recorder = st

		if _, err := scheduler.AddFunc("@daily", func() {
			if _, err := st.Prune(ctx, cfg.Store.RetentionDays); err != nil {
				logger.Warn("stats prune failed", "err", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule prune: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Dedup.Enabled {
		d, err := dedup.New(ctx, dedup.Config{
			Backend:       cfg.Dedup.Backend,
			TTL:           time.Duration(cfg.Dedup.TTLSeconds) * time.Second,
			RedisAddr:     cfg.Dedup.RedisAddr,
			RedisPassword: cfg.Dedup.RedisPassword,
			RedisDB:       cfg.Dedup.RedisDB,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("dedup: %w", err)
		}
		defer d.Close()
		relayCfg.Dedup = d
	}

	telegramCh := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		PollTimeout: cfg.Telegram.PollTimeout,
		RateLimiter: channel.NewRateLimiter(cfg.Telegram.RateBurst, float64(cfg.Telegram.RateLimitPerMinute)),
		Logger:      logger,
	})
	if err := telegramCh.Connect(); err != nil {
		return err
	}
	relayCfg.Sink = telegramCh

	r, err := relay.New(relayCfg)
	if err != nil {
		return err
	}
	loop, err := relay.NewLoop(relay.LoopConfig{
		Handler:     r,
		Bus:         messageBus,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentMessages,
	})
	if err != nil {
		return err
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	errCh := make(chan error, 2)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}
	server := channel.NewServer(channel.ServerConfig{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		WebhookPath: cfg.Server.WebhookPath,
		SecretToken: cfg.Server.SecretToken,
		MetricsPath: metricsPath,
		Events:      events,
		Logger:      logger,
	})
	go func() {
		if err := server.Start(ctx, messageBus); err != nil {
			errCh <- err
		}
	}()

	switch cfg.Telegram.Mode {
	case "webhook":
		if cfg.Server.RegisterWebhook {
			if err := telegramCh.SetWebhook(cfg.Server.WebhookURL(), cfg.Server.SecretToken); err != nil {
				logger.Error("webhook registration failed", "err", err)
			}
		}
	case "polling":
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				errCh <- fmt.Errorf("telegram polling: %w", err)
			}
		}()
	}

	if url := cfg.KeepAlive.TargetURL(cfg.Server); cfg.KeepAlive.Enabled && url != "" {
		ka := channel.NewKeepAlive(channel.KeepAliveConfig{
			URL:      url,
			Interval: time.Duration(cfg.KeepAlive.IntervalSeconds) * time.Second,
			Events:   events,
			Logger:   logger,
		})
		go func() {
			if err := ka.Run(ctx); err != nil {
				logger.Error("keepalive error", "err", err)
			}
		}()
	} else if cfg.KeepAlive.Enabled {
		logger.Info("keepalive disabled: no public URL")
	}

	logger.Info("gateway started",
		"version", version,
		"mode", cfg.Telegram.Mode,
		"addr", server.Addr(),
		"source", cfg.Relay.SourceChannelID,
		"target", cfg.Relay.TargetChannelID,
		"variant", cfg.Relay.SignalVariant,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("gateway component failed", "err", runErr)
		stop()
	}
	logger.Info("shutting down gateway...")

	// Ingress stops on ctx; the loop drains in-flight messages.
	select {
	case <-loopDone:
		messageBus.Close()
		if n := messageBus.Discard(); n > 0 {
			logger.Warn("messages dropped at shutdown", "count", n)
		}
		reportRecentFailures(events, startedAt)
		counts := events.Counts()
		logger.Info("shutdown complete",
			"sent", counts[bus.EventRelaySent],
			"ignored", counts[bus.EventRelayIgnored],
			"duplicate", counts[bus.EventRelayDuplicate],
			"failed", counts[bus.EventRelayFailed],
		)
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown timed out")
		}
	}
	return runErr
}

// reportRecentFailures logs the relay failures still held in the event
// history since the gateway started, oldest first, and returns how many.
func reportRecentFailures(events *bus.EventBus, since time.Time) int {
	failed := events.Replay(bus.EventRelayFailed, since)
	for _, e := range failed {
		logger.Warn("relay failure this run",
			"at", e.Timestamp.Format(time.RFC3339),
			"category", e.Payload["category"],
			"update_id", e.Payload["update_id"],
			"chat_id", e.Payload["chat_id"],
		)
	}
	return len(failed)
}
