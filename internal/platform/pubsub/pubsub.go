// Package pubsub carries document change events between writers and live
// watchers. Every write publishes on the collection topic and on the
// per-document topic "<collection>/<id>".
package pubsub

import (
	"context"
	"sync"
	"time"
)

// Change operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event describes one committed write.
type Event struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	At         time.Time `json:"at"`
}

// Topics returns the topics an event is delivered on.
func (e Event) Topics() []string {
	if e.ID == "" {
		return []string{e.Collection}
	}
	return []string{e.Collection, DocTopic(e.Collection, e.ID)}
}

// DocTopic names the topic for a single document.
func DocTopic(collection, id string) string {
	return collection + "/" + id
}

// Handler receives events for a subscribed topic. Handlers run on the
// subscriber's own goroutine and must not block for long.
type Handler func(Event)

// Bus publishes change events and fans them out to subscribers.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// subscriber owns a buffered queue drained by one goroutine so a slow
// handler never stalls publishers. Events beyond the buffer are dropped;
// watchers re-read the document on the next event anyway.
type subscriber struct {
	queue chan Event
	done  chan struct{}
	once  sync.Once
}

func newSubscriber(h Handler, buffer int) *subscriber {
	s := &subscriber{queue: make(chan Event, buffer), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-s.done:
				return
			case e := <-s.queue:
				h(e)
			}
		}
	}()
	return s
}

func (s *subscriber) deliver(e Event) bool {
	select {
	case <-s.done:
		return false
	case s.queue <- e:
		return true
	default:
		return false
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// MemoryBus is an in-process Bus for a single instance.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	buffer int
	now    func() time.Time
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*subscriber]struct{}),
		buffer: 64,
		now:    time.Now,
	}
}

func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.dispatch(e)
	return nil
}

// dispatch delivers e to local subscribers of its topics.
func (b *MemoryBus) dispatch(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, topic := range e.Topics() {
		for s := range b.topics[topic] {
			s.deliver(e)
		}
	}
}

func (b *MemoryBus) Subscribe(topic string, h Handler) func() {
	s := newSubscriber(h, b.buffer)

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriber]struct{})
	}
	b.topics[topic][s] = struct{}{}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if subs, ok := b.topics[topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
		b.mu.Unlock()
		s.stop()
	}
}

// TopicCount returns the number of subscribers on topic.
func (b *MemoryBus) TopicCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
