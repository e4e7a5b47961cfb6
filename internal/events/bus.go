// Package events is the in-process notification channel: named topics,
// multiple subscribers, at-least-once delivery while a subscriber stays
// registered. Delivery order between subscribers is unspecified.
package events

import "sync"

// Topics published by the core.
const (
	TopicStockUpdated            = "stockUpdated"
	TopicConnectionStatusChanged = "connectionStatusChanged"
)

// StockUpdated is the advisory payload emitted after a ledger write so
// UIs and caches can refresh. NavigateTo optionally hints which view
// should be shown (e.g. "pos" after receiving a supplier order).
type StockUpdated struct {
	ProductID  string `json:"product_id"`
	NewStock   int    `json:"new_stock"`
	Source     string `json:"source"`
	NavigateTo string `json:"navigate_to,omitempty"`
}

// Handler receives one published payload.
type Handler func(payload any)

// Bus fans published payloads out to subscribers of a topic.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for a topic and returns the matching
// unsubscribe function.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers payload to every current subscriber of topic.
// Handlers run on the caller's goroutine; they must not block.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}
