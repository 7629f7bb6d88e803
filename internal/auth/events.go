package auth

import "sync"

type Event string

const (
	EventSignedIn  Event = "SIGNED_IN"
	EventSignedOut Event = "SIGNED_OUT"
)

type Handler func(event Event, session *Session)

// Hub fans auth events out to subscribers. Every subscription is called
// independently; there is no deduplication.
type Hub struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
}

func NewHub() *Hub {
	return &Hub{handlers: make(map[int]Handler)}
}

// Subscription is released with Unsubscribe. Unsubscribing twice is safe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

func (h *Hub) Subscribe(fn Handler) *Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.handlers[id] = fn
	h.mu.Unlock()

	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	}}
}

func (h *Hub) Publish(event Event, session *Session) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(event, session)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}
