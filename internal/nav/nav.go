// Package nav holds the current page of a dashboard session.
package nav

import (
	"fmt"
	"strings"
	"sync"
)

type Page string

const (
	PageFundingCalls Page = "funding-calls"
	PageSettings     Page = "settings"
	PageSources      Page = "sources"
)

var Pages = []Page{PageFundingCalls, PageSettings, PageSources}

func ParsePage(s string) (Page, error) {
	for _, p := range Pages {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown page %q", s)
}

// PathFor returns the browser path of p.
func PathFor(p Page) string {
	if p == PageFundingCalls {
		return "/"
	}
	return "/" + string(p)
}

// PageFromPath maps a browser path back to a page. Unknown paths land on
// the funding calls page.
func PageFromPath(path string) Page {
	path = strings.TrimSuffix(strings.TrimSpace(path), "/")
	for _, p := range Pages {
		if p != PageFundingCalls && path == "/"+string(p) {
			return p
		}
	}
	return PageFundingCalls
}

type Listener func(Page)

// Store is an owned navigation state. Listeners are notified outside the
// lock, in no particular order.
type Store struct {
	mu        sync.Mutex
	current   Page
	nextID    int
	listeners map[int]Listener
	closed    bool
}

func NewStore() *Store {
	return &Store{current: PageFundingCalls, listeners: make(map[int]Listener)}
}

func (s *Store) Current() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Navigate switches to p, notifies listeners and returns the path the
// browser should show.
func (s *Store) Navigate(p Page) string {
	s.mu.Lock()
	s.current = p
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(p)
	}
	return PathFor(p)
}

// Sync adopts the page of a browser path without notifying listeners.
func (s *Store) Sync(path string) Page {
	p := PageFromPath(path)
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return p
}

// Subscribe registers fn and returns the func that removes it. Subscribing
// to a closed store is a no-op.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Close releases every listener.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]Listener)
	s.mu.Unlock()
}
