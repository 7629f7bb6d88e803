// Package dashboard owns the per-sign-in state of the web UI: navigation,
// manual relevance overrides and the settings cache. A session lives from
// SIGNED_IN until SIGNED_OUT or until its auth session expires; nothing in it
// is persisted.
package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/david/funding-monitor/internal/auth"
	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/nav"
	"github.com/david/funding-monitor/internal/settings"
	"github.com/google/uuid"
)

type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time // zero means no expiry
	Nav       *nav.Store
	Overrides *fundingcalls.Overrides
	Settings  *settings.Manager

	mu             sync.Mutex
	onlyRelevant   bool
	settingsLoaded bool
	unsubscribeNav func()
}

func newSession(id, userID uuid.UUID, expiresAt time.Time, repo settings.Repository) *Session {
	s := &Session{
		ID:           id,
		UserID:       userID,
		ExpiresAt:    expiresAt,
		Nav:          nav.NewStore(),
		Overrides:    fundingcalls.NewOverrides(),
		Settings:     settings.NewManager(repo, userID),
		onlyRelevant: true,
	}
	s.unsubscribeNav = s.Nav.Subscribe(func(p nav.Page) {
		log.Printf("Navigating to: %s", p)
	})
	return s
}

func (s *Session) OnlyRelevant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlyRelevant
}

func (s *Session) SetOnlyRelevant(v bool) {
	s.mu.Lock()
	s.onlyRelevant = v
	s.mu.Unlock()
}

// EnsureSettings loads the user's settings on first use. A failed load is
// retried on the next call.
func (s *Session) EnsureSettings(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.settingsLoaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	if err := s.Settings.Load(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.settingsLoaded = true
	s.mu.Unlock()
	return nil
}

func (s *Session) close() {
	s.unsubscribeNav()
	s.Nav.Close()
	s.Overrides.Reset()
}

// Registry maps auth session ids to dashboard sessions.
type Registry struct {
	repo settings.Repository

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	sub      *auth.Subscription
}

func NewRegistry(repo settings.Repository) *Registry {
	return &Registry{repo: repo, sessions: make(map[uuid.UUID]*Session)}
}

// AuthEvents is the subscription side of the auth provider.
type AuthEvents interface {
	OnAuthStateChange(fn auth.Handler) *auth.Subscription
}

// Attach starts following sign-in and sign-out events.
func (r *Registry) Attach(events AuthEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	r.sub = events.OnAuthStateChange(r.handle)
}

func (r *Registry) handle(event auth.Event, session *auth.Session) {
	if session == nil {
		return
	}
	switch event {
	case auth.EventSignedIn:
		r.Open(session)
	case auth.EventSignedOut:
		r.End(session.ID)
	}
}

// Open returns the dashboard session for s, creating it if needed. Sessions
// that outlive a server restart are recreated empty on first use.
func (r *Registry) Open(s *auth.Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.ID]; ok {
		return existing
	}
	ds := newSession(s.ID, s.User.ID, s.ExpiresAt, r.repo)
	r.sessions[s.ID] = ds
	return ds
}

func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// End discards the session and everything it holds.
func (r *Registry) End(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.close()
	}
}

// EndExpired ends every session whose auth session expired at or before now
// and reports how many were dropped. Expired tokens never publish SIGNED_OUT.
func (r *Registry) EndExpired(now time.Time) int {
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	return len(expired)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close detaches from auth events and ends every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	if r.sub != nil {
		r.sub.Unsubscribe()
		r.sub = nil
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
