package domain

import "context"

// Sink publishes rendered messages to the target channel.
type Sink interface {
	SendText(ctx context.Context, chatID int64, htmlBody string) error
	SendPhoto(ctx context.Context, chatID int64, mediaRef, htmlCaption string) error
	SendVideo(ctx context.Context, chatID int64, mediaRef, htmlCaption string) error
	SendDocument(ctx context.Context, chatID int64, mediaRef, htmlCaption string) error
}

// Channel is a platform adapter that feeds the bus.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
