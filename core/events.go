package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

type EventType string

const (
	EventStatusChanged     EventType = "status-changed"
	EventSubmissionCreated EventType = "submission-created"
	EventRefreshStarted    EventType = "refresh-started"
	EventRefreshFinished   EventType = "refresh-finished"
	EventSessionStarted    EventType = "session-started"
	EventSessionEnded      EventType = "session-ended"
)

type Event struct {
	Type           EventType
	UserID         string
	Submission     *Submission
	PreviousStatus SubmissionStatus
	Reason         string
	Err            error
	OccurredAt     time.Time
}

type EventHandler func(ctx context.Context, event Event)

// EventBus delivers events synchronously to subscribers in subscription order.
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]eventSubscription
}

type eventSubscription struct {
	order   uint64
	types   map[EventType]struct{}
	handler EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: map[uint64]eventSubscription{}}
}

// Subscribe registers handler for the given event types, or for every event
// when none are given. The returned func removes the subscription.
func (b *EventBus) Subscribe(handler EventHandler, types ...EventType) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	filter := map[EventType]struct{}{}
	for _, eventType := range types {
		filter[eventType] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = eventSubscription{order: id, types: filter, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *EventBus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	for _, sub := range b.snapshot() {
		if len(sub.types) > 0 {
			if _, ok := sub.types[event.Type]; !ok {
				continue
			}
		}
		sub.handler(ctx, event)
	}
}

func (b *EventBus) snapshot() []eventSubscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]eventSubscription, 0, len(b.handlers))
	for _, sub := range b.handlers {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].order < subs[j].order
	})
	return subs
}
