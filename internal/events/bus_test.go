package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	a := bus.Subscribe(ctx, StreamTasks)
	b := bus.Subscribe(ctx, StreamTasks)

	bus.Publish(StreamTasks, "task_update", "payload")

	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		select {
		case msg := <-ch:
			if msg.Type != "task_update" || msg.Payload != "payload" {
				t.Errorf("subscriber %s got unexpected message %+v", name, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive message", name)
		}
	}
}

func TestStreamsAreIsolated(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	thoughts := bus.Subscribe(context.Background(), StreamThoughts)
	bus.Publish(StreamTasks, "task_update", nil)

	select {
	case msg := <-thoughts:
		t.Errorf("thoughts subscriber received task message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLateSubscriberMissesEarlierMessages(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Publish(StreamTimeline, "early", nil)
	ch := bus.Subscribe(context.Background(), StreamTimeline)
	bus.Publish(StreamTimeline, "late", nil)

	select {
	case msg := <-ch:
		if msg.Type != "late" {
			t.Errorf("late subscriber should only see post-subscription messages, got %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestCancellationDetaches(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, StreamTasks)
	cancel()

	// Wait for the channel to close.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if n := bus.SubscriberCount(StreamTasks); n != 0 {
					t.Errorf("subscriber not detached, count=%d", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancellation")
		}
	}
}

func TestHeartbeatDelivered(t *testing.T) {
	bus := NewBus(WithHeartbeatInterval(20 * time.Millisecond))
	defer bus.Close()

	ch := bus.Subscribe(context.Background(), StreamThoughts)
	select {
	case msg := <-ch:
		if msg.Type != Heartbeat {
			t.Errorf("expected heartbeat, got %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(context.Background(), StreamTasks)
	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(StreamTasks, "burst", i)
	}

	// First delivered message should no longer be payload 0.
	msg := <-ch
	if msg.Payload == 0 {
		t.Error("expected oldest message to be dropped under overflow")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(context.Background(), StreamTimeline)
	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			// drain until close
			for range ch {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed on bus close")
	}
}
