// Package notify fans operation outcomes out to per-wallet subscribers.
// The API layer exposes subscriptions as server-sent event streams.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds pushed to wallet subscribers.
const (
	KindDeposit       = "deposit"
	KindRefund        = "refund"
	KindWithdrawal    = "withdrawal"
	KindSwapToWrapped = "swap-to-wrapped"
	KindSwapToNative  = "swap-to-native"
	KindFailure       = "failure"
)

// Event is one notification delivered to a wallet's subscribers.
type Event struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber channel; a slow consumer
// drops events instead of blocking publishers.
const subscriberBuffer = 16

// Bus routes events by native address.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[int64]chan Event
	next int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int64]chan Event)}
}

// Subscribe registers a listener for one wallet. The returned cancel
// func must be called when the consumer goes away.
func (b *Bus) Subscribe(native string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[native] == nil {
		b.subs[native] = make(map[int64]chan Event)
	}
	b.subs[native][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subs[native]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subs, native)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to the wallet's subscribers. Events to
// wallets nobody watches are dropped.
func (b *Bus) Publish(native, kind string, data any) {
	event := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[native] {
		select {
		case ch <- event:
		default:
		}
	}
}
