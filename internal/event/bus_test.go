package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/plugin"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []plugin.Event
	bus.Subscribe("inventory.service.event", func(_ context.Context, e plugin.Event) {
		got = append(got, e)
	})

	err := bus.Publish(context.Background(), plugin.Event{
		Topic:   "inventory.service.event",
		Source:  "inventory",
		Payload: "a",
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(got) != 1 || got[0].Payload != "a" {
		t.Errorf("got = %+v, want one event with payload a", got)
	}
}

func TestPublishSkipsOtherTopics(t *testing.T) {
	bus := NewBus(zap.NewNop())

	called := false
	bus.Subscribe("topic.a", func(_ context.Context, _ plugin.Event) { called = true })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "topic.b"})
	if called {
		t.Error("handler for topic.a received topic.b event")
	}
}

// TestPublishPreservesOrder verifies the synchronous delivery contract that
// the inventory diff batches rely on.
func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []int
	bus.Subscribe("batch", func(_ context.Context, e plugin.Event) {
		got = append(got, e.Payload.(int))
	})

	for i := 0; i < 10; i++ {
		_ = bus.Publish(context.Background(), plugin.Event{Topic: "batch", Payload: i})
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at %d: got %v", i, got)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	count := 0
	unsub := bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { count++ })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})
	unsub()
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})

	if count != 1 {
		t.Errorf("count = %d, want 1 after unsubscribe", count)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topics []string
	unsub := bus.SubscribeAll(func(_ context.Context, e plugin.Event) {
		topics = append(topics, e.Topic)
	})
	defer unsub()

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "x"})
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "y"})

	if len(topics) != 2 || topics[0] != "x" || topics[1] != "y" {
		t.Errorf("topics = %v, want [x y]", topics)
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { panic("boom") })
	delivered := false
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { delivered = true })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})
	if !delivered {
		t.Error("panic in one handler must not block the others")
	}
}

func TestPublishAsync(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) {
		wg.Done()
	})
	go func() {
		wg.Wait()
		close(done)
	}()

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "t"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe("c", func(_ context.Context, _ plugin.Event) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), plugin.Event{Topic: "c"})
		}()
	}
	wg.Wait()
}
