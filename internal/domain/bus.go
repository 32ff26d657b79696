package domain

import "context"

// MessageBus routes channel posts from the platform adapters to the relay loop.
type MessageBus interface {
	Publish(ctx context.Context, msg InboundMessage) error
	Subscribe() <-chan InboundMessage
	Close()
}
