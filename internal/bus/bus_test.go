package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	received := make(chan *domain.Message, 1)

	_, err := b.Subscribe(ctx, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicRunCompleted, []byte(`{"run_id":"r1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic != domain.TopicRunCompleted {
			t.Errorf("expected topic %s, got %s", domain.TopicRunCompleted, msg.Topic)
		}
		if string(msg.Payload) != `{"run_id":"r1"}` {
			t.Errorf("unexpected payload: %s", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("expected a message ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)

	for i := 0; i < 2; i++ {
		var once sync.Once
		_, err := b.Subscribe(ctx, "topic", func(ctx context.Context, msg *domain.Message) error {
			once.Do(wg.Done)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
	}

	b.Publish(ctx, "topic", []byte("payload"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	received := make(chan *domain.Message, 1)

	b.Subscribe(ctx, "topic-a", func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})

	b.Publish(ctx, "topic-b", []byte("wrong topic"))

	select {
	case msg := <-received:
		t.Errorf("received a message from the wrong topic: %s", msg.Topic)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	received := make(chan *domain.Message, 1)

	sub, _ := b.Subscribe(ctx, "topic", func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})

	if sub.Topic() != "topic" {
		t.Errorf("expected topic 'topic', got %s", sub.Topic())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	// Give the handler goroutine a moment to observe cancellation.
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, "topic", []byte("after unsubscribe"))

	select {
	case <-received:
		t.Error("received a message after unsubscribing")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)

	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("ping before close failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping to fail on a closed bus")
	}
	if err := b.Publish(ctx, "topic", []byte("x")); err == nil {
		t.Error("expected publish to fail on a closed bus")
	}
	if _, err := b.Subscribe(ctx, "topic", nil); err == nil {
		t.Error("expected subscribe to fail on a closed bus")
	}

	// Closing twice is fine.
	if err := b.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNewBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("failed to create channel bus: %v", err)
	}
	defer b.Close()

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected an error for an unsupported bus type")
	}
}
