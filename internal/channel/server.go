package channel

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"signalrelay/internal/bus"
	"signalrelay/internal/domain"
	"signalrelay/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// HealthText is the body of the liveness endpoint.
	HealthText = "Bot is alive! 🚀"

	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodyBytes = 1 << 20
)

type ServerConfig struct {
	Host        string
	Port        int
	WebhookPath string // default /telegram
	SecretToken string // expected X-Telegram-Bot-Api-Secret-Token; empty disables the check
	MetricsPath string // empty disables /metrics
	Events      *bus.EventBus
	Logger      *slog.Logger
}

// Server hosts the health check, the Telegram webhook and the metrics
// endpoint. As a Channel it feeds webhook deliveries into the bus.
type Server struct {
	host        string
	port        int
	webhookPath string
	secret      string
	metricsPath string
	events      *bus.EventBus
	bus         domain.MessageBus
	logger      *slog.Logger
	server      *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/telegram"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		webhookPath: cfg.WebhookPath,
		secret:      cfg.SecretToken,
		metricsPath: cfg.MetricsPath,
		events:      cfg.Events,
		logger:      cfg.Logger,
	}
}

func (s *Server) Name() string { return "webhook" }

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Router builds the HTTP routes. Webhook deliveries are published to b.
func (s *Server) Router(b domain.MessageBus) http.Handler {
	s.bus = b

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Head("/", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Post(s.webhookPath, s.handleWebhook)
	if s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, metrics.Handler())
	}
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, b domain.MessageBus) error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(b),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", s.server.Addr, "path", s.webhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("webhook server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.WriteString(rw, HealthText)
	}
}

// handleWebhook answers 200 for anything Telegram may redeliver, so a
// malformed update is logged and dropped rather than retried. Only an
// unauthenticated request is refused.
func (s *Server) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if s.secret != "" && !verifySecret(r.Header.Get(secretHeader), s.secret) {
		metrics.WebhookRejected.WithLabelValues("secret").Inc()
		s.logger.Warn("webhook rejected: bad secret token", "remote", r.RemoteAddr)
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		s.logger.Warn("webhook body read failed", "err", err)
		rw.WriteHeader(http.StatusOK)
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		metrics.WebhookRejected.WithLabelValues("json").Inc()
		s.logger.Warn("webhook update not decodable", "err", err, "size", len(body))
		rw.WriteHeader(http.StatusOK)
		return
	}

	msg, ok := ToInbound(update)
	if !ok {
		s.logger.Debug("webhook update without message", "update_id", update.UpdateID)
		rw.WriteHeader(http.StatusOK)
		return
	}

	metrics.InboundTotal.WithLabelValues("webhook").Inc()
	if s.events != nil {
		s.events.Emit(bus.Event{
			Type:   bus.EventUpdateReceived,
			Source: "webhook",
			Payload: map[string]any{
				"update_id": msg.UpdateID,
				"chat_id":   msg.ChatID,
			},
		})
	}
	if err := s.bus.Publish(r.Context(), msg); err != nil {
		s.logger.Warn("webhook update not queued", "update_id", msg.UpdateID, "err", err)
	}

	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, "OK")
}

func verifySecret(got, want string) bool {
	return hmac.Equal([]byte(got), []byte(want))
}
