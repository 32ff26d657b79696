package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"signalrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestToInbound_ChannelPostText(t *testing.T) {
	var u tgbotapi.Update
	if err := json.Unmarshal([]byte(`{
		"update_id": 1,
		"channel_post": {"message_id": 2, "date": 1700000000, "chat": {"id": -100, "type": "channel"}, "text": "WIN ✅"}
	}`), &u); err != nil {
		t.Fatal(err)
	}

	msg, ok := ToInbound(u)
	if !ok {
		t.Fatal("expected ok")
	}
	if msg.Text != "WIN ✅" || msg.MediaKind != domain.MediaNone || msg.MediaRef != "" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.ReceivedAt.Unix() != 1700000000 {
		t.Errorf("unexpected date %v", msg.ReceivedAt)
	}
}

func TestToInbound_Media(t *testing.T) {
	tests := []struct {
		name string
		post *tgbotapi.Message
		kind domain.MediaKind
		ref  string
	}{
		{"video", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -1}, Video: &tgbotapi.Video{FileID: "v1"}}, domain.MediaVideo, "v1"},
		{"document", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -1}, Document: &tgbotapi.Document{FileID: "d1"}}, domain.MediaDocument, "d1"},
		{"photo", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -1}, Photo: []tgbotapi.PhotoSize{{FileID: "p0"}, {FileID: "p1"}}}, domain.MediaPhoto, "p1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ToInbound(tgbotapi.Update{UpdateID: 9, ChannelPost: tt.post})
			if !ok {
				t.Fatal("expected ok")
			}
			if msg.MediaKind != tt.kind || msg.MediaRef != tt.ref {
				t.Errorf("got %s %q, want %s %q", msg.MediaKind, msg.MediaRef, tt.kind, tt.ref)
			}
		})
	}
}

func TestToInbound_FallsBackToMessage(t *testing.T) {
	msg, ok := ToInbound(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}, Text: "hi"}})
	if !ok || msg.ChatID != 42 {
		t.Errorf("expected message fallback, got ok=%v %+v", ok, msg)
	}
}

func TestToInbound_NoMessage(t *testing.T) {
	if _, ok := ToInbound(tgbotapi.Update{UpdateID: 1}); ok {
		t.Error("update without message should not convert")
	}
	if _, ok := ToInbound(tgbotapi.Update{ChannelPost: &tgbotapi.Message{}}); ok {
		t.Error("message without chat should not convert")
	}
}

// fakeBotAPI records Bot API calls made through the tgbotapi client.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []botCall
}

type botCall struct {
	method string
	form   map[string]string
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		form := map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		f.mu.Lock()
		f.calls = append(f.calls, botCall{method: method, form: form})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Relay","username":"relay_bot"}}`)
		case "setWebhook", "deleteWebhook":
			io.WriteString(w, `{"ok":true,"result":true}`)
		default:
			io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-200,"type":"channel"}}}`)
		}
	}
}

func (f *fakeBotAPI) last() botCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	tg := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		APIEndpoint: srv.URL + "/bot%s/%s",
		RateLimiter: NewRateLimiter(100, 6000),
		Logger:      testLogger(),
	})
	if err := tg.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return tg, fake
}

func TestTelegram_SendText(t *testing.T) {
	tg, fake := newTestTelegram(t)

	if err := tg.SendText(context.Background(), -200, "<b>✅ WIN</b>"); err != nil {
		t.Fatal(err)
	}
	call := fake.last()
	if call.method != "sendMessage" {
		t.Fatalf("expected sendMessage, got %s", call.method)
	}
	if call.form["chat_id"] != "-200" || call.form["text"] != "<b>✅ WIN</b>" || call.form["parse_mode"] != "HTML" {
		t.Errorf("unexpected form: %v", call.form)
	}
}

func TestTelegram_SendMediaByFileID(t *testing.T) {
	tg, fake := newTestTelegram(t)
	ctx := context.Background()

	tests := []struct {
		send   func() error
		method string
		field  string
	}{
		{func() error { return tg.SendPhoto(ctx, -200, "ph", "<b>c</b>") }, "sendPhoto", "photo"},
		{func() error { return tg.SendVideo(ctx, -200, "vd", "<b>c</b>") }, "sendVideo", "video"},
		{func() error { return tg.SendDocument(ctx, -200, "dc", "<b>c</b>") }, "sendDocument", "document"},
	}
	for _, tt := range tests {
		if err := tt.send(); err != nil {
			t.Fatalf("%s: %v", tt.method, err)
		}
		call := fake.last()
		if call.method != tt.method {
			t.Errorf("expected %s, got %s", tt.method, call.method)
		}
		if call.form[tt.field] == "" || call.form["caption"] != "<b>c</b>" || call.form["parse_mode"] != "HTML" {
			t.Errorf("%s: unexpected form %v", tt.method, call.form)
		}
	}
}

func TestTelegram_SetWebhook(t *testing.T) {
	tg, fake := newTestTelegram(t)

	if err := tg.SetWebhook("https://relay.example.com/telegram", "s3cret"); err != nil {
		t.Fatal(err)
	}
	call := fake.last()
	if call.method != "setWebhook" {
		t.Fatalf("expected setWebhook, got %s", call.method)
	}
	if call.form["url"] != "https://relay.example.com/telegram" || call.form["secret_token"] != "s3cret" {
		t.Errorf("unexpected form: %v", call.form)
	}
	if !strings.Contains(call.form["allowed_updates"], "channel_post") {
		t.Errorf("allowed_updates missing channel_post: %q", call.form["allowed_updates"])
	}
}

func TestTelegram_SendWithoutConnect(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "x", Logger: testLogger()})
	if err := tg.SendText(context.Background(), 1, "x"); err == nil {
		t.Error("expected error when not connected")
	}
}
