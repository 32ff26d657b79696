package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"signalrelay/internal/bus"
	"signalrelay/internal/domain"
)

type countingHandler struct {
	handled atomic.Int32
}

func (h *countingHandler) Handle(context.Context, domain.InboundMessage) (Outcome, error) {
	h.handled.Add(1)
	return OutcomeSent, nil
}

func TestLoop_DrainsOnBusClose(t *testing.T) {
	b := bus.New(10, testLogger())
	h := &countingHandler{}
	loop, err := NewLoop(LoopConfig{Handler: h, Bus: b, Logger: testLogger(), Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), domain.InboundMessage{ChatID: testSource, MessageID: i})
	}
	b.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after bus close")
	}
	if got := h.handled.Load(); got != 5 {
		t.Errorf("expected 5 handled, got %d", got)
	}
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	b := bus.New(10, testLogger())
	defer b.Close()
	loop, err := NewLoop(LoopConfig{Handler: &countingHandler{}, Bus: b, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestLoop_WithRelay(t *testing.T) {
	b := bus.New(10, testLogger())
	sink := &fakeSink{}
	r := newTestRelay(t, sink)
	loop, err := NewLoop(LoopConfig{Handler: r, Bus: b, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()
	b.Publish(context.Background(), textMsg("WIN ✅"))
	b.Publish(context.Background(), textMsg("nothing to see"))
	b.Close()
	<-done

	sent := sink.messages()
	if len(sent) != 1 || sent[0].body != "<b>✅ WIN</b>" {
		t.Errorf("unexpected sends: %+v", sent)
	}
}

func TestLoop_HandlesQueuedMessagesOnCancel(t *testing.T) {
	b := bus.New(64, testLogger())
	for i := 0; i < 50; i++ {
		if err := b.Publish(context.Background(), domain.InboundMessage{ChatID: testSource, UpdateID: i + 1}); err != nil {
			t.Fatal(err)
		}
	}

	h := &countingHandler{}
	loop, err := NewLoop(LoopConfig{Handler: h, Bus: b, Logger: testLogger(), Concurrency: 4})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop.Run(ctx)
	b.Close()

	if got := h.handled.Load(); got != 50 {
		t.Errorf("expected all 50 queued messages handled, got %d", got)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("bus should be empty after the loop stopped")
	}
}

func TestNewLoop_DefaultLogger(t *testing.T) {
	b := bus.New(1, testLogger())
	loop, err := NewLoop(LoopConfig{Handler: &countingHandler{}, Bus: b})
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	loop.Run(context.Background())
}
