package domain

import "time"

// MediaKind identifies the attachment carried by a channel post.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// InboundMessage is one channel post as delivered by the platform.
// Media posts carry Caption, plain posts carry Text.
type InboundMessage struct {
	UpdateID   int
	MessageID  int
	ChatID     int64 // origin channel
	Text       string
	Caption    string
	MediaKind  MediaKind
	MediaRef   string // platform file handle, forwarded as-is
	ReceivedAt time.Time
}

// Subject returns the text the classifier inspects and whether it came from a caption.
func (m InboundMessage) Subject() (string, bool) {
	if m.Text != "" {
		return m.Text, false
	}
	return m.Caption, m.Caption != ""
}

// HasMedia reports whether the message carries a forwardable attachment.
func (m InboundMessage) HasMedia() bool {
	return m.MediaKind != "" && m.MediaKind != MediaNone && m.MediaRef != ""
}

type OutboundMessage struct {
	TargetChatID int64
	Body         string // HTML
	ParseMode    string
	MediaKind    MediaKind
	MediaRef     string
}
