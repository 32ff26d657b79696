package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"signalrelay/internal/domain"
	"signalrelay/internal/metrics"
)

const (
	defaultBufferSize = 100
	publishTimeout    = 10 * time.Second
)

var (
	ErrBusClosed = errors.New("bus closed")
	ErrBusFull   = errors.New("bus full")
)

// InMemoryBus is a buffered queue between the Telegram ingress paths and the relay loop.
type InMemoryBus struct {
	inbound chan domain.InboundMessage
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundMessage, bufferSize),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish enqueues msg. When the buffer is full it waits up to 10s, or until
// ctx is done, and then drops the message with an error.
func (b *InMemoryBus) Publish(ctx context.Context, msg domain.InboundMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metrics.BusDropped.WithLabelValues("closed").Inc()
		return ErrBusClosed
	}

	select {
	case b.inbound <- msg:
		return nil
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "update_id", msg.UpdateID, "queued", len(b.inbound))
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		metrics.BusDropped.WithLabelValues("cancelled").Inc()
		return ctx.Err()
	case <-timer.C:
		metrics.BusDropped.WithLabelValues("full").Inc()
		b.logger.Error("message dropped: inbound bus full",
			"update_id", msg.UpdateID,
			"chat_id", msg.ChatID,
			"waited", b.timeout,
		)
		return ErrBusFull
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// Close stops intake. Messages already queued are still delivered to the subscriber.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}

// Discard empties whatever is still queued after the subscriber has stopped,
// logging and counting each message as dropped. It returns how many were discarded.
func (b *InMemoryBus) Discard() int {
	n := 0
	for {
		select {
		case msg, ok := <-b.inbound:
			if !ok {
				return n
			}
			n++
			metrics.BusDropped.WithLabelValues("shutdown").Inc()
			b.logger.Warn("message dropped: still queued at shutdown",
				"update_id", msg.UpdateID,
				"chat_id", msg.ChatID,
			)
		default:
			return n
		}
	}
}
