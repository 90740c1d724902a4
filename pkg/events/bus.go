// Package events implements the per-cluster event bus (spec §4.9): per-topic
// callback registration and synchronous, fire-and-forget dispatch. Every
// Cluster owns its own Bus — there is no global registry or singleton.
package events

import "sync"

// Topic names one of the eight join/remove channels the core fires.
type Topic string

const (
	MemberJoin      Topic = "MemberJoin"
	MemberRemove    Topic = "MemberRemove"
	JobConfigJoin   Topic = "JobConfigJoin"
	JobConfigRemove Topic = "JobConfigRemove"
	JobRecordJoin   Topic = "JobRecordJoin"
	JobRecordRemove Topic = "JobRecordRemove"
	TaskJoin        Topic = "TaskJoin"
	TaskRemove      Topic = "TaskRemove"
)

// Handler receives the payload published on a topic. Handlers run
// synchronously on the reconciler goroutine that published the event and
// must not block — a slow subscriber delays the next reconcile tick (spec §5).
type Handler func(payload interface{})

// Bus is a simple per-topic callback list. It is safe for concurrent use:
// mu guards the handler lists, and Publish calls handlers outside the lock
// on a copy of the list taken at the time of the call.
type Bus struct {
	mu       sync.Mutex
	handlers map[Topic][]subscription
	nextID   int
}

type subscription struct {
	id      int
	handler Handler
}

// SubscriptionID identifies a registered handler for later Unsubscribe.
type SubscriptionID int

// New returns an empty Bus.
func New() *Bus {
	return &Bus{handlers: map[Topic][]subscription{}}
}

// Subscribe registers handler on topic and returns an id for Unsubscribe.
func (b *Bus) Subscribe(topic Topic, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})
	return SubscriptionID(id)
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(topic Topic, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == int(id) {
			b.handlers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler subscribed to topic, in subscription order,
// synchronously on the calling goroutine.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.mu.Lock()
	subs := make([]subscription, len(b.handlers[topic]))
	copy(subs, b.handlers[topic])
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(payload)
	}
}
