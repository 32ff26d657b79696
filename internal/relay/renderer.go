package relay

import (
	"html"
	"strings"

	"signalrelay/internal/domain"
)

const parseModeHTML = "HTML"

// Renderer turns a classification into the message published to the target channel.
// Rendering is pure: the same input always yields the same bytes.
type Renderer struct {
	targetChatID int64
	variant      string
	templates    *Templates
}

func NewRenderer(targetChatID int64, variant string, templates *Templates) *Renderer {
	if variant == "" {
		variant = VariantExtended
	}
	return &Renderer{
		targetChatID: targetChatID,
		variant:      variant,
		templates:    templates,
	}
}

// Render returns the outbound message, or false for ignored input.
// Result captions on media posts keep the original media reference.
func (r *Renderer) Render(c domain.Classification, msg domain.InboundMessage) (domain.OutboundMessage, bool) {
	out := domain.OutboundMessage{
		TargetChatID: r.targetChatID,
		ParseMode:    parseModeHTML,
		MediaKind:    domain.MediaNone,
	}

	switch c.Kind {
	case domain.KindSignal:
		out.Body = r.RenderSignal(c.Signal)
	case domain.KindResult:
		out.Body = r.RenderResult(c.Result, c.RawText)
		if _, fromCaption := msg.Subject(); fromCaption && msg.HasMedia() {
			out.MediaKind = msg.MediaKind
			out.MediaRef = msg.MediaRef
		}
	default:
		return domain.OutboundMessage{}, false
	}
	return out, true
}

// RenderSignal fills the configured signal variant.
func (r *Renderer) RenderSignal(f domain.SignalFields) string {
	tpl, ok := r.templates.Signal[r.variant]
	if !ok {
		tpl = r.templates.Signal[VariantExtended]
	}
	rep := strings.NewReplacer(
		"{{ASSET}}", html.EscapeString(f.Asset),
		"{{TIMEFRAME}}", html.EscapeString(f.Timeframe),
		"{{ENTRY_TIME}}", html.EscapeString(f.EntryTime),
		"{{DIRECTION}}", r.direction(f),
		"{{EXTRAS}}", r.extras(f),
		"{{FOOTER}}", r.templates.Footer,
	)
	return rep.Replace(tpl)
}

// RenderResult returns the bold body for a result category.
func (r *Renderer) RenderResult(category domain.ResultCategory, rawText string) string {
	body := r.templates.Results[string(category)]
	if category == domain.ResultLoss {
		body = strings.ReplaceAll(body, "{{LABEL}}", r.lossLabel(rawText))
	}
	return "<b>" + body + "</b>"
}

func (r *Renderer) direction(f domain.SignalFields) string {
	switch f.Direction {
	case domain.DirectionUp:
		return r.templates.Direction.Up
	case domain.DirectionDown:
		return r.templates.Direction.Down
	default:
		label := f.DirectionLabel
		if label == "" {
			label = domain.NotAvailable
		}
		return html.EscapeString(label)
	}
}

// extras renders the optional trend, forecast and payout lines, each
// terminated by a newline, or an empty string when none was found.
func (r *Renderer) extras(f domain.SignalFields) string {
	var sb strings.Builder
	add := func(tpl, value string) {
		if tpl == "" || value == "" || value == domain.NotAvailable {
			return
		}
		sb.WriteString(strings.ReplaceAll(tpl, "{{VALUE}}", html.EscapeString(value)))
		sb.WriteString("\n")
	}
	add(r.templates.Extras.Trend, f.Trend)
	add(r.templates.Extras.Forecast, f.Forecast)
	add(r.templates.Extras.Payout, f.PayoutRate)
	return sb.String()
}

// lossLabel keeps a superscript marker the upstream post already carried.
func (r *Renderer) lossLabel(rawText string) string {
	label := r.templates.LossLabel
	if label == "" {
		label = "💔 LOSS"
	}
	for _, sup := range []string{superscriptTwo, superscriptOne} {
		if strings.Contains(rawText, sup) {
			return label + sup
		}
	}
	return label
}
