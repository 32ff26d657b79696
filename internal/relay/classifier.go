package relay

import (
	"strings"

	"signalrelay/internal/domain"
)

// Classifier decides which category an inbound message belongs to.
// It holds only read-only configuration and is safe for concurrent use.
type Classifier struct {
	sourceChatID int64
}

func NewClassifier(sourceChatID int64) *Classifier {
	return &Classifier{sourceChatID: sourceChatID}
}

// Classify admits messages from the source channel only and returns
// a signal, a result, or an ignore classification.
func (c *Classifier) Classify(msg domain.InboundMessage) domain.Classification {
	ignore := domain.Classification{Kind: domain.KindIgnore}

	if msg.ChatID != c.sourceChatID {
		return ignore
	}
	subject, _ := msg.Subject()
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ignore
	}

	lines := splitLines(subject)
	if isSignal(lines) {
		return domain.Classification{
			Kind:   domain.KindSignal,
			Signal: extractSignal(lines),
		}
	}

	if category, ok := classifyResult(strings.ToUpper(subject)); ok {
		return domain.Classification{
			Kind:    domain.KindResult,
			Result:  category,
			RawText: subject,
		}
	}
	return ignore
}
