package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalrelay/internal/domain"
	"signalrelay/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(2, testEBLogger())
	defer b.Close()

	if err := b.Publish(context.Background(), domain.InboundMessage{UpdateID: 7, Text: "WIN ✅"}); err != nil {
		t.Fatal(err)
	}
	if got := <-b.Subscribe(); got.UpdateID != 7 {
		t.Fatalf("expected update 7, got %d", got.UpdateID)
	}
}

func TestInMemoryBus_QueuedMessagesSurviveClose(t *testing.T) {
	b := New(2, testEBLogger())
	b.Publish(context.Background(), domain.InboundMessage{UpdateID: 1})
	b.Close()
	b.Close()

	if err := b.Publish(context.Background(), domain.InboundMessage{UpdateID: 2}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
	if got, ok := <-b.Subscribe(); !ok || got.UpdateID != 1 {
		t.Fatalf("expected queued update 1, got %v %v", got.UpdateID, ok)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed subscription")
	}
}

func TestInMemoryBus_FullDropsAfterTimeout(t *testing.T) {
	b := New(1, testEBLogger())
	defer b.Close()
	b.timeout = 20 * time.Millisecond

	b.Publish(context.Background(), domain.InboundMessage{UpdateID: 1})
	if err := b.Publish(context.Background(), domain.InboundMessage{UpdateID: 2}); !errors.Is(err, ErrBusFull) {
		t.Fatalf("expected ErrBusFull, got %v", err)
	}
}

func TestInMemoryBus_FullHonoursContext(t *testing.T) {
	b := New(1, testEBLogger())
	defer b.Close()
	b.Publish(context.Background(), domain.InboundMessage{UpdateID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Publish(ctx, domain.InboundMessage{UpdateID: 2}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryBus_DefaultBuffer(t *testing.T) {
	if b := New(0, testEBLogger()); cap(b.inbound) != defaultBufferSize {
		t.Fatalf("expected default buffer %d, got %d", defaultBufferSize, cap(b.inbound))
	}
}

func TestInMemoryBus_DiscardCountsLeftovers(t *testing.T) {
	b := New(8, testEBLogger())
	for i := 1; i <= 3; i++ {
		b.Publish(context.Background(), domain.InboundMessage{UpdateID: i, ChatID: -100})
	}
	b.Close()

	dropped := metrics.BusDropped.WithLabelValues("shutdown")
	before := counterValue(t, dropped)

	if n := b.Discard(); n != 3 {
		t.Fatalf("expected 3 discarded, got %d", n)
	}
	if got := counterValue(t, dropped) - before; got != 3 {
		t.Errorf("expected shutdown drop counter +3, got %v", got)
	}
	if n := b.Discard(); n != 0 {
		t.Errorf("second discard should find nothing, got %d", n)
	}
}

func TestInMemoryBus_DiscardOpenEmptyBus(t *testing.T) {
	b := New(2, testEBLogger())
	defer b.Close()
	if n := b.Discard(); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}
