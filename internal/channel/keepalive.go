package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"signalrelay/internal/bus"
	"signalrelay/internal/metrics"

	"github.com/robfig/cron/v3"
)

type KeepAliveConfig struct {
	URL      string
	Interval time.Duration // default 30s
	Client   *http.Client
	Events   *bus.EventBus
	Logger   *slog.Logger
}

// KeepAlive GETs the service's own public URL on a schedule so free-tier
// hosts that idle on inbound silence keep the process up.
type KeepAlive struct {
	url      string
	interval time.Duration
	client   *http.Client
	events   *bus.EventBus
	logger   *slog.Logger
}

func NewKeepAlive(cfg KeepAliveConfig) *KeepAlive {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeepAlive{
		url:      cfg.URL,
		interval: cfg.Interval,
		client:   cfg.Client,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
}

// Run pings once, schedules the rest and blocks until ctx is done.
func (k *KeepAlive) Run(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", k.interval)
	if _, err := c.AddFunc(spec, func() { k.Ping(ctx) }); err != nil {
		return fmt.Errorf("keepalive schedule %q: %w", spec, err)
	}
	k.Ping(ctx)
	c.Start()
	k.logger.Info("keepalive started", "url", k.url, "interval", k.interval)

	<-ctx.Done()
	<-c.Stop().Done()
	k.logger.Info("keepalive stopped")
	return nil
}

// Ping performs one request. Failures are logged only.
func (k *KeepAlive) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		metrics.KeepAlivePings.WithLabelValues("error").Inc()
		k.logger.Warn("keepalive ping failed", "url", k.url, "err", err)
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	result := "ok"
	if resp.StatusCode >= 400 {
		result = "error"
		k.logger.Warn("keepalive ping non-2xx", "url", k.url, "status", resp.StatusCode)
	} else {
		k.logger.Debug("keepalive ping", "status", resp.StatusCode)
	}
	metrics.KeepAlivePings.WithLabelValues(result).Inc()

	if k.events != nil {
		k.events.Emit(bus.Event{
			Type:    bus.EventKeepAlive,
			Source:  "keepalive",
			Payload: map[string]any{"status": resp.StatusCode},
		})
	}
	if result == "error" {
		return fmt.Errorf("keepalive: status %d", resp.StatusCode)
	}
	return nil
}
