package events

import (
	"context"
	"sync"
	"time"
)

// Kind names a class of state change that subscribers can react to.
type Kind string

const (
	KindManuals       Kind = "manuals-changed"
	KindBookmarks     Kind = "bookmarks-changed"
	KindNotifications Kind = "notifications-changed"
	KindInteractions  Kind = "interactions-changed"
	KindRequests      Kind = "requests-changed"
	KindSearchLogs    Kind = "search-logs-changed"
	KindUsers         Kind = "users-changed"
	KindSession       Kind = "session-changed"
)

const defaultStreamBuffer = 16

// AllKinds lists every event kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindManuals, KindBookmarks, KindNotifications, KindInteractions, KindRequests, KindSearchLogs, KindUsers, KindSession}
}

// Event describes a completed store write.
type Event struct {
	Kind      Kind
	IDs       []string
	UserID    string
	Timestamp time.Time
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Publisher is the narrow side of the bus used by repositories.
type Publisher interface {
	Publish(event Event)
}

// Bus is a typed observer registry keyed by event kind.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind]map[int64]Handler
	order       map[Kind][]int64
	nextID      int64
	clock       func() time.Time
}

// NewBus constructs an empty bus. A nil clock falls back to time.Now.
func NewBus(clock func() time.Time) *Bus {
	if clock == nil {
		clock = time.Now
	}
	return &Bus{
		subscribers: make(map[Kind]map[int64]Handler),
		order:       make(map[Kind][]int64),
		clock:       clock,
	}
}

// Subscribe registers handler for kind and returns the unsubscribe func.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	if kind == "" || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if _, ok := b.subscribers[kind]; !ok {
		b.subscribers[kind] = make(map[int64]Handler)
	}
	b.subscribers[kind][id] = handler
	b.order[kind] = append(b.order[kind], id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(kind, id) })
	}
}

// Stream delivers events of the given kinds on a buffered channel until ctx is done.
// Sends never block the publisher; a full buffer drops the event.
func (b *Bus) Stream(ctx context.Context, kinds ...Kind) <-chan Event {
	stream := make(chan Event, defaultStreamBuffer)
	var mu sync.Mutex
	closed := false
	cleanups := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		cleanups = append(cleanups, b.Subscribe(kind, func(event Event) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case stream <- event:
			default:
			}
		}))
	}
	go func() {
		<-ctx.Done()
		for _, cleanup := range cleanups {
			cleanup()
		}
		mu.Lock()
		closed = true
		close(stream)
		mu.Unlock()
	}()
	return stream
}

// Publish stamps the event and invokes every handler of its kind in subscription order.
func (b *Bus) Publish(event Event) {
	if b == nil || event.Kind == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.clock().UTC()
	}
	b.mu.RLock()
	ids := b.order[event.Kind]
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		if handler, ok := b.subscribers[event.Kind][id]; ok {
			handlers = append(handlers, handler)
		}
	}
	b.mu.RUnlock()
	for _, handler := range handlers {
		handler(event)
	}
}

func (b *Bus) unsubscribe(kind Kind, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subscribers := b.subscribers[kind]
	if subscribers == nil {
		return
	}
	delete(subscribers, id)
	ids := b.order[kind]
	for index, candidate := range ids {
		if candidate == id {
			b.order[kind] = append(ids[:index:index], ids[index+1:]...)
			break
		}
	}
	if len(subscribers) == 0 {
		delete(b.subscribers, kind)
		delete(b.order, kind)
	}
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}
