// Package events provides the in-process fan-out bus for task, thought,
// knowledge, and timeline updates. The bus is a plain value injected into
// the components that publish; it never imports them.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stream identifies one fan-out channel of the bus.
type Stream string

const (
	StreamTasks    Stream = "tasks"
	StreamThoughts Stream = "thoughts"
	StreamTimeline Stream = "timeline"
)

// Message is one published bus message.
type Message struct {
	Stream  Stream    `json:"stream"`
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Heartbeat is the Type of periodic liveness messages.
const Heartbeat = "heartbeat"

// DefaultHeartbeatInterval is how often idle subscribers receive a
// heartbeat message.
const DefaultHeartbeatInterval = 15 * time.Second

const subscriberBuffer = 64

// Bus fans out messages per stream to any number of subscribers. The bus
// retains no history: a subscriber sees only messages published after its
// subscription. A slow subscriber loses the oldest undelivered message
// rather than blocking publishers.
type Bus struct {
	mu        sync.Mutex
	streams   map[Stream]map[int64]*subscriber
	nextID    int64
	heartbeat time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

type subscriber struct {
	ch     chan Message
	cancel context.CancelFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithHeartbeatInterval overrides the heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a bus and starts its heartbeat ticker.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		streams:   make(map[Stream]map[int64]*subscriber),
		heartbeat: DefaultHeartbeatInterval,
		logger:    slog.Default(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.heartbeatLoop()
	return b
}

// Subscribe attaches a subscriber to a stream. The returned channel
// receives every message published to the stream after this call plus
// periodic heartbeats. The subscription detaches and the channel closes
// when ctx is cancelled or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, stream Stream) <-chan Message {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		ch:     make(chan Message, subscriberBuffer),
		cancel: cancel,
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.streams[stream] == nil {
		b.streams[stream] = make(map[int64]*subscriber)
	}
	b.streams[stream][id] = sub
	b.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
		case <-b.stop:
		}
		b.mu.Lock()
		if subs, ok := b.streams[stream]; ok {
			if _, live := subs[id]; live {
				delete(subs, id)
				close(sub.ch)
			}
		}
		b.mu.Unlock()
		cancel()
	}()

	return sub.ch
}

// Publish delivers a message to every subscriber of its stream. Never
// blocks: when a subscriber's buffer is full the oldest undelivered
// message is dropped.
func (b *Bus) Publish(stream Stream, msgType string, payload any) {
	msg := Message{Stream: stream, Type: msgType, Payload: payload, At: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.streams[stream] {
		b.deliver(sub, msg)
	}
}

// deliver sends with drop-oldest overflow. Must be called with the lock
// held.
func (b *Bus) deliver(sub *subscriber, msg Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
			b.logger.Debug("event bus dropped message for slow subscriber", "stream", msg.Stream)
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers on a stream.
func (b *Bus) SubscriberCount(stream Stream) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams[stream])
}

// Close detaches all subscribers and stops the heartbeat ticker.
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.mu.Lock()
		for stream, subs := range b.streams {
			for id, sub := range subs {
				delete(subs, id)
				close(sub.ch)
				sub.cancel()
			}
			delete(b.streams, stream)
		}
		b.mu.Unlock()
	})
}

func (b *Bus) heartbeatLoop() {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			for stream, subs := range b.streams {
				msg := Message{Stream: stream, Type: Heartbeat, At: time.Now()}
				for _, sub := range subs {
					b.deliver(sub, msg)
				}
			}
			b.mu.Unlock()
		}
	}
}
