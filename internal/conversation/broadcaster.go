// ABOUTME: In-memory fan-out broadcaster for engine change notifications
// ABOUTME: Renderers subscribe and re-read the engine when a Change arrives

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// ChangeKind names the part of engine state that changed
type ChangeKind int

// Change kinds
const (
	// ListChanged means the conversation list was replaced or patched.
	ListChanged ChangeKind = iota + 1
	// ActiveChanged means the active detail was replaced, cleared or edited.
	ActiveChanged
	// StatusChanged means the loading, sending or error state changed.
	StatusChanged
	// ModelsChanged means the model catalogue was replaced.
	ModelsChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ListChanged:
		return "list"
	case ActiveChanged:
		return "active"
	case StatusChanged:
		return "status"
	case ModelsChanged:
		return "models"
	}
	return "unknown"
}

// Change is a notification that engine state moved. ConversationID is the
// conversation concerned, or 0 when the change is not about one conversation.
type Change struct {
	Kind           ChangeKind
	ConversationID int64
}

// Broadcaster provides in-memory pub/sub for engine changes. Changes carry no
// state; subscribers read the current state from the engine when notified.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Change
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber. Returns a channel that receives changes
// and a subscription ID for later unsubscription. The subscription is
// automatically cleaned up when ctx is cancelled. Subscribing to a closed
// broadcaster yields an already-closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a change to every subscriber without blocking. When a
// subscriber's buffer is full its oldest pending change is dropped, so the
// most recent change always reaches it.
func (b *Broadcaster) Publish(change Change) {
	// Publishes are serialised so the drop-then-send below cannot interleave,
	// and Unsubscribe cannot close a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- change:
			continue
		default:
		}
		select {
		case dropped := <-ch:
			b.logger.Debug("dropped change for slow subscriber",
				"sub_id", id,
				"kind", dropped.Kind.String())
		default:
		}
		select {
		case ch <- change:
		default:
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
