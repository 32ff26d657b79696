package dedup

import (
	"context"
	"testing"
	"time"
)

func TestMemory_FirstSeenThenDuplicate(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	seen, err := m.Seen(ctx, "-100:1")
	if err != nil || seen {
		t.Fatalf("first sight: seen=%v err=%v", seen, err)
	}
	seen, _ = m.Seen(ctx, "-100:1")
	if !seen {
		t.Error("second sight should be a duplicate")
	}
	seen, _ = m.Seen(ctx, "-100:2")
	if seen {
		t.Error("different key should not be a duplicate")
	}
}

func TestMemory_EmptyKeyNeverDuplicate(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()

	for i := 0; i < 2; i++ {
		if seen, _ := m.Seen(context.Background(), ""); seen {
			t.Fatal("empty key must never be reported as seen")
		}
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	m.Seen(context.Background(), "k")
	now = now.Add(2 * time.Minute)

	if seen, _ := m.Seen(context.Background(), "k"); seen {
		t.Error("expired key should be accepted again")
	}
}

func TestMemory_Sweep(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	m.Seen(context.Background(), "a")
	m.Seen(context.Background(), "b")

	now = now.Add(2 * time.Minute)
	m.sweep()

	if m.Len() != 0 {
		t.Errorf("expected empty cache after sweep, got %d", m.Len())
	}
}

func TestMemory_CloseIdempotent(t *testing.T) {
	m := NewMemory(time.Minute)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_Backends(t *testing.T) {
	s, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", s)
	}
	s.Close()

	if _, err := New(context.Background(), Config{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
