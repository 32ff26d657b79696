package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signalrelay/internal/domain"

	"github.com/panjf2000/ants/v2"
)

const (
	defaultConcurrency = 5
	drainTimeout       = 10 * time.Second
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) (Outcome, error)
}

type LoopConfig struct {
	Handler     Handler
	Bus         domain.MessageBus
	Logger      *slog.Logger
	Concurrency int // max messages handled in parallel
}

// Loop consumes the inbound bus and hands each message to a worker pool.
// Messages are independent, so no ordering is kept between them.
type Loop struct {
	handler Handler
	bus     domain.MessageBus
	pool    *ants.Pool
	logger  *slog.Logger
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &Loop{
		handler: cfg.Handler,
		bus:     cfg.Bus,
		pool:    pool,
		logger:  cfg.Logger,
	}, nil
}

// Run blocks until ctx is done or the bus is closed. On cancellation the
// messages already buffered on the bus are still handed to the pool; Run
// then waits for in-flight messages to finish.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("relay loop started", "concurrency", l.pool.Cap())
	defer l.drain()

	// In-flight messages finish their send after shutdown begins.
	handleCtx := context.WithoutCancel(ctx)
	inbound := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			n := l.drainQueued(handleCtx, inbound)
			l.logger.Info("relay loop stopping", "queued_handled", n)
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound bus closed, relay loop stopping")
				return
			}
			l.submit(handleCtx, msg)
		}
	}
}

// drainQueued submits whatever is buffered on inbound without waiting for
// more, and returns how many messages it took.
func (l *Loop) drainQueued(ctx context.Context, inbound <-chan domain.InboundMessage) int {
	n := 0
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return n
			}
			l.submit(ctx, msg)
			n++
		default:
			return n
		}
	}
}

func (l *Loop) submit(ctx context.Context, msg domain.InboundMessage) {
	if err := l.pool.Submit(func() {
		// Handle logs its own failures.
		_, _ = l.handler.Handle(ctx, msg)
	}); err != nil {
		l.logger.Error("message dropped: worker pool rejected it", "update_id", msg.UpdateID, "err", err)
	}
}

func (l *Loop) drain() {
	if err := l.pool.ReleaseTimeout(drainTimeout); err != nil {
		l.logger.Warn("worker pool did not drain in time", "err", err)
	}
}
