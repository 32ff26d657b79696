package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signalrelay/internal/domain"
	"signalrelay/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// allowedUpdates limits Bot API deliveries to what the relay reads.
var allowedUpdates = []string{"channel_post", "message"}

// Telegram is the Bot API adapter: it converts channel posts into
// InboundMessages (long-polling mode) and implements domain.Sink.
type Telegram struct {
	token       string
	endpoint    string
	pollTimeout int

	bot     *tgbotapi.BotAPI
	limiter *RateLimiter
	logger  *slog.Logger
}

type TelegramConfig struct {
	Token       string
	APIEndpoint string // Bot API URL format; defaults to tgbotapi.APIEndpoint
	PollTimeout int    // long-poll seconds
	RateLimiter *RateLimiter
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = NewRateLimiter(0, 0)
	}
	return &Telegram{
		token:       cfg.Token,
		endpoint:    cfg.APIEndpoint,
		pollTimeout: cfg.PollTimeout,
		limiter:     cfg.RateLimiter,
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect authenticates the token with getMe. It must succeed before any
// send or Start call.
func (t *Telegram) Connect() error {
	if t.bot != nil {
		return nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// Start long-polls for updates and publishes channel posts to the bus until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := t.Connect(); err != nil {
		return err
	}
	// getUpdates is refused while a webhook is registered.
	if err := t.DeleteWebhook(); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	u.AllowedUpdates = allowedUpdates
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := ToInbound(update)
			if !ok {
				continue
			}
			metrics.InboundTotal.WithLabelValues("polling").Inc()
			t.logger.Debug("telegram channel post received",
				"update_id", msg.UpdateID,
				"chat_id", msg.ChatID,
				"media", msg.MediaKind,
			)
			if err := bus.Publish(ctx, msg); err != nil {
				t.logger.Warn("channel post not queued", "update_id", msg.UpdateID, "err", err)
			}
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error {
	return nil
}

// SetWebhook registers url with Telegram. secret, when set, is echoed back
// by Telegram in X-Telegram-Bot-Api-Secret-Token on every delivery.
func (t *Telegram) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	resp, err := t.bot.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	t.logger.Info("telegram webhook registered", "url", url, "secret", secret != "")
	return nil
}

func (t *Telegram) DeleteWebhook() error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func (t *Telegram) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	return t.bot.GetWebhookInfo()
}

// --- domain.Sink ---

func (t *Telegram) SendText(ctx context.Context, chatID int64, htmlBody string) error {
	msg := tgbotapi.NewMessage(chatID, htmlBody)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return t.send(ctx, chatID, msg)
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, mediaRef, htmlCaption string) error {
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(mediaRef))
	p.Caption = htmlCaption
	p.ParseMode = tgbotapi.ModeHTML
	return t.send(ctx, chatID, p)
}

func (t *Telegram) SendVideo(ctx context.Context, chatID int64, mediaRef, htmlCaption string) error {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FileID(mediaRef))
	v.Caption = htmlCaption
	v.ParseMode = tgbotapi.ModeHTML
	return t.send(ctx, chatID, v)
}

func (t *Telegram) SendDocument(ctx context.Context, chatID int64, mediaRef, htmlCaption string) error {
	d := tgbotapi.NewDocument(chatID, tgbotapi.FileID(mediaRef))
	d.Caption = htmlCaption
	d.ParseMode = tgbotapi.ModeHTML
	return t.send(ctx, chatID, d)
}

// send makes a single attempt; failures are reported, never retried.
func (t *Telegram) send(ctx context.Context, chatID int64, c tgbotapi.Chattable) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: not connected")
	}
	if err := t.limiter.Wait(ctx, chatID); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// ToInbound converts a Bot API update into an InboundMessage. Channel posts
// are preferred; plain messages are accepted so groups can act as a source.
// Updates carrying neither are reported as not ok.
func ToInbound(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.ChannelPost
	if m == nil {
		m = update.Message
	}
	if m == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}

	in := domain.InboundMessage{
		UpdateID:   update.UpdateID,
		MessageID:  m.MessageID,
		ChatID:     m.Chat.ID,
		Text:       m.Text,
		Caption:    m.Caption,
		MediaKind:  domain.MediaNone,
		ReceivedAt: time.Unix(int64(m.Date), 0),
	}
	switch {
	case len(m.Photo) > 0:
		// Sizes are ascending; the last one is the original.
		in.MediaKind = domain.MediaPhoto
		in.MediaRef = m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		in.MediaKind = domain.MediaVideo
		in.MediaRef = m.Video.FileID
	case m.Document != nil:
		in.MediaKind = domain.MediaDocument
		in.MediaRef = m.Document.FileID
	}
	return in, true
}
