// Package bus provides the in-memory outbound message path from the
// assistant core to whatever front end is attached (console, tests).
package bus

import (
	"context"
	"sync"
	"time"
)

// OutboundMessage is text the assistant wants delivered to the user of a
// conversation group.
type OutboundMessage struct {
	GroupName string    `json:"groupName"`
	Content   string    `json:"content"`
	Origin    string    `json:"origin,omitempty"` // chat | task | delegate
	Timestamp time.Time `json:"timestamp"`
}

// MessageBus fans outbound messages out to subscribers.
type MessageBus struct {
	outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers []func(OutboundMessage)
}

// New creates a message bus with a buffered outbound channel.
func New() *MessageBus {
	return &MessageBus{outbound: make(chan OutboundMessage, 100)}
}

// Publish queues a message for delivery.
func (b *MessageBus) Publish(msg OutboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.outbound <- msg
}

// Subscribe registers a callback invoked for every outbound message.
func (b *MessageBus) Subscribe(fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Dispatch runs the delivery loop until ctx is cancelled.
func (b *MessageBus) Dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbound:
			b.mu.RLock()
			subs := b.subscribers
			b.mu.RUnlock()
			for _, fn := range subs {
				fn(msg)
			}
		}
	}
}

// Pending returns the number of queued outbound messages.
func (b *MessageBus) Pending() int {
	return len(b.outbound)
}
