package channel

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"signalrelay/internal/bus"
	"signalrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const photoLossUpdate = `{
	"update_id": 10,
	"channel_post": {
		"message_id": 5,
		"date": 1700000000,
		"chat": {"id": -1001, "type": "channel"},
		"caption": "💔 LOSS",
		"photo": [
			{"file_id": "small", "file_unique_id": "s", "width": 90, "height": 90},
			{"file_id": "big", "file_unique_id": "b", "width": 800, "height": 800}
		]
	}
}`

func newTestServer(t *testing.T, secret string) (*httptest.Server, *bus.InMemoryBus) {
	t.Helper()
	b := bus.New(10, testLogger())
	s := NewServer(ServerConfig{
		WebhookPath: "/telegram",
		SecretToken: secret,
		MetricsPath: "/metrics",
		Events:      bus.NewEventBus(testLogger()),
		Logger:      testLogger(),
	})
	srv := httptest.NewServer(s.Router(b))
	t.Cleanup(srv.Close)
	return srv, b
}

func receive(t *testing.T, b *bus.InMemoryBus) (domain.InboundMessage, bool) {
	t.Helper()
	select {
	case msg := <-b.Subscribe():
		return msg, true
	case <-time.After(100 * time.Millisecond):
		return domain.InboundMessage{}, false
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if string(body) != HealthText {
		t.Errorf("expected %q, got %q", HealthText, body)
	}
}

func TestServer_WebhookPublishes(t *testing.T) {
	srv, b := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/telegram", "application/json", strings.NewReader(photoLossUpdate))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	msg, ok := receive(t, b)
	if !ok {
		t.Fatal("expected a published message")
	}
	if msg.UpdateID != 10 || msg.ChatID != -1001 || msg.Caption != "💔 LOSS" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.MediaKind != domain.MediaPhoto || msg.MediaRef != "big" {
		t.Errorf("expected largest photo, got %s %q", msg.MediaKind, msg.MediaRef)
	}
}

func TestServer_WebhookBadJSONStillOK(t *testing.T) {
	srv, b := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/telegram", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for undecodable update, got %d", resp.StatusCode)
	}
	if _, ok := receive(t, b); ok {
		t.Error("nothing should be published for bad JSON")
	}
}

func TestServer_WebhookNonMessageUpdate(t *testing.T) {
	srv, b := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/telegram", "application/json", strings.NewReader(`{"update_id": 3}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if _, ok := receive(t, b); ok {
		t.Error("update without a message should not be published")
	}
}

func TestServer_WebhookSecret(t *testing.T) {
	srv, b := newTestServer(t, "s3cret")

	post := func(token string) int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/telegram", strings.NewReader(photoLossUpdate))
		if token != "" {
			req.Header.Set(secretHeader, token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post(""); code != http.StatusUnauthorized {
		t.Errorf("missing secret: expected 401, got %d", code)
	}
	if code := post("wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong secret: expected 401, got %d", code)
	}
	if _, ok := receive(t, b); ok {
		t.Fatal("rejected request must not publish")
	}

	if code := post("s3cret"); code != http.StatusOK {
		t.Errorf("valid secret: expected 200, got %d", code)
	}
	if _, ok := receive(t, b); !ok {
		t.Error("authenticated delivery should publish")
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "signalrelay_uptime_seconds") {
		t.Error("metrics output missing uptime gauge")
	}
}

func TestServer_Addr(t *testing.T) {
	s := NewServer(ServerConfig{Host: "0.0.0.0", Port: 10000, Logger: testLogger()})
	if s.Addr() != "0.0.0.0:10000" {
		t.Errorf("unexpected addr %q", s.Addr())
	}
	if NewServer(ServerConfig{Logger: testLogger()}).Addr() != ":8080" {
		t.Error("default port should be 8080")
	}
}

func TestVerifySecret(t *testing.T) {
	if !verifySecret("abc", "abc") {
		t.Error("equal tokens should verify")
	}
	if verifySecret("abd", "abc") || verifySecret("", "abc") {
		t.Error("mismatched tokens should not verify")
	}
}
