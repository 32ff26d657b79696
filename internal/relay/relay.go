package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"signalrelay/internal/bus"
	"signalrelay/internal/domain"
	"signalrelay/internal/metrics"

	"github.com/google/uuid"
)

// Outcome is what happened to one inbound message.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// ErrClassification wraps a failure recovered while classifying or rendering.
var ErrClassification = errors.New("classification failed")

// Deduper reports whether a key was already seen and records it otherwise.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Recorder persists per-category outcome counters.
type Recorder interface {
	RecordOutcome(ctx context.Context, category, outcome string) error
}

// Config wires a Relay. Sink is required; the rest is optional.
type Config struct {
	SourceChatID  int64
	TargetChatID  int64
	SignalVariant string
	Templates     *Templates
	Sink          domain.Sink
	Dedup         Deduper
	Recorder      Recorder
	Events        *bus.EventBus
	Logger        *slog.Logger
}

// Relay classifies, renders and publishes one message at a time.
// It holds no per-message state, so Handle may run concurrently.
type Relay struct {
	classifier *Classifier
	renderer   *Renderer
	sink       domain.Sink
	dedup      Deduper
	recorder   Recorder
	events     *bus.EventBus
	logger     *slog.Logger
}

func New(cfg Config) (*Relay, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("relay: sink is required")
	}
	if cfg.Templates == nil {
		t, err := DefaultTemplates()
		if err != nil {
			return nil, err
		}
		cfg.Templates = t
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		classifier: NewClassifier(cfg.SourceChatID),
		renderer:   NewRenderer(cfg.TargetChatID, cfg.SignalVariant, cfg.Templates),
		sink:       cfg.Sink,
		dedup:      cfg.Dedup,
		recorder:   cfg.Recorder,
		events:     cfg.Events,
		logger:     cfg.Logger,
	}, nil
}

// Handle runs one message through classify, render and emit. Errors are
// logged and returned for the caller's information; nothing is retried.
func (r *Relay) Handle(ctx context.Context, msg domain.InboundMessage) (Outcome, error) {
	logger := r.logger.With(
		"request_id", uuid.NewString(),
		"chat_id", msg.ChatID,
		"message_id", msg.MessageID,
	)

	c, out, ok, err := r.prepare(msg)
	if err != nil {
		logger.Warn("message dropped", "err", err)
		r.record(ctx, logger, msg, "unknown", OutcomeFailed)
		return OutcomeFailed, err
	}
	label := c.Label()
	if !ok {
		logger.Debug("message ignored")
		r.record(ctx, logger, msg, label, OutcomeIgnored)
		return OutcomeIgnored, nil
	}

	if r.dedup != nil && msg.UpdateID != 0 {
		seen, err := r.dedup.Seen(ctx, dedupKey(msg))
		if err != nil {
			logger.Warn("dedup check failed, relaying anyway", "err", err)
		} else if seen {
			logger.Info("duplicate update skipped", "update_id", msg.UpdateID, "category", label)
			r.record(ctx, logger, msg, label, OutcomeDuplicate)
			return OutcomeDuplicate, nil
		}
	}

	start := time.Now()
	err = r.emit(ctx, out)
	metrics.SinkLatency.WithLabelValues(string(out.MediaKind)).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("relay send failed", "category", label, "media", out.MediaKind, "err", err)
		r.record(ctx, logger, msg, label, OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("send %s: %w", label, err)
	}

	logger.Info("relay sent", "category", label, "media", out.MediaKind, "target", out.TargetChatID)
	r.record(ctx, logger, msg, label, OutcomeSent)
	return OutcomeSent, nil
}

// Preview classifies and renders without publishing.
func (r *Relay) Preview(msg domain.InboundMessage) (domain.Classification, domain.OutboundMessage, bool, error) {
	return r.prepare(msg)
}

// prepare recovers from any panic in classification or rendering so a
// single malformed post can never take the handling loop down.
func (r *Relay) prepare(msg domain.InboundMessage) (c domain.Classification, out domain.OutboundMessage, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrClassification, p)
			ok = false
		}
	}()

	c = r.classifier.Classify(msg)
	if c.Kind == domain.KindIgnore {
		return c, out, false, nil
	}
	out, ok = r.renderer.Render(c, msg)
	return c, out, ok, nil
}

func (r *Relay) emit(ctx context.Context, out domain.OutboundMessage) error {
	switch out.MediaKind {
	case domain.MediaPhoto:
		return r.sink.SendPhoto(ctx, out.TargetChatID, out.MediaRef, out.Body)
	case domain.MediaVideo:
		return r.sink.SendVideo(ctx, out.TargetChatID, out.MediaRef, out.Body)
	case domain.MediaDocument:
		return r.sink.SendDocument(ctx, out.TargetChatID, out.MediaRef, out.Body)
	default:
		return r.sink.SendText(ctx, out.TargetChatID, out.Body)
	}
}

func (r *Relay) record(ctx context.Context, logger *slog.Logger, msg domain.InboundMessage, category string, outcome Outcome) {
	metrics.MessagesTotal.WithLabelValues(category, string(outcome)).Inc()

	if r.recorder != nil {
		if err := r.recorder.RecordOutcome(ctx, category, string(outcome)); err != nil {
			logger.Warn("stats record failed", "err", err)
		}
	}
	if r.events != nil {
		r.events.Emit(bus.Event{
			Type:    eventType(outcome),
			Source:  "relay",
			Payload: map[string]any{
				"category":  category,
				"update_id": msg.UpdateID,
				"chat_id":   msg.ChatID,
			},
		})
	}
}

func eventType(o Outcome) string {
	switch o {
	case OutcomeSent:
		return bus.EventRelaySent
	case OutcomeDuplicate:
		return bus.EventRelayDuplicate
	case OutcomeFailed:
		return bus.EventRelayFailed
	default:
		return bus.EventRelayIgnored
	}
}

func dedupKey(msg domain.InboundMessage) string {
	return strconv.FormatInt(msg.ChatID, 10) + ":" + strconv.Itoa(msg.UpdateID)
}
