package sources

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/models"
)

var (
	ErrNotFound      = errors.New("source not found")
	ErrInvalidSource = errors.New("invalid source")
)

// Repository is the sources table as seen by the manager.
type Repository interface {
	ListSources(ctx context.Context) ([]models.Source, error)
	InsertSource(ctx context.Context, in models.SourceInsert) (*models.Source, error)
	UpdateSource(ctx context.Context, id int64, u models.SourceUpdate) (*models.Source, error)
	DeleteSource(ctx context.Context, id int64) error
}

type State struct {
	Sources []models.Source `json:"sources"`
	Loading bool            `json:"loading"`
	Error   *string         `json:"error"`
}

// Manager keeps a local copy of the sources table. Writes go to the
// repository first and are applied locally from the returned row; a failed
// write records the error and leaves the local list as it was. Concurrent
// writers are last-write-wins; the list is only reconciled on Refetch.
type Manager struct {
	repo Repository

	mu      sync.RWMutex
	list    []models.Source
	loading bool
	loaded  bool
	errMsg  string
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, list: []models.Source{}, loading: true}
}

func (m *Manager) Refetch(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.errMsg = ""
	m.mu.Unlock()

	list, err := m.repo.ListSources(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.loaded = true
	if err != nil {
		m.errMsg = db.ErrorMessage(err)
		log.Printf("Error fetching sources: %v", err)
		return err
	}
	m.list = list
	return nil
}

// EnsureLoaded performs the initial fetch once.
func (m *Manager) EnsureLoaded(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}
	return m.Refetch(ctx)
}

func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{Sources: make([]models.Source, len(m.list)), Loading: m.loading}
	copy(st.Sources, m.list)
	if m.errMsg != "" {
		msg := m.errMsg
		st.Error = &msg
	}
	return st
}

// Get returns the locally cached source with id.
func (m *Manager) Get(id int64) (models.Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.list {
		if s.ID == id {
			return s, true
		}
	}
	return models.Source{}, false
}

func (m *Manager) Create(ctx context.Context, in models.SourceInsert) (*models.Source, error) {
	m.clearError()
	if err := validateInsert(in); err != nil {
		m.fail("creating", err)
		return nil, err
	}

	created, err := m.repo.InsertSource(ctx, in)
	if err != nil {
		m.fail("creating", err)
		return nil, err
	}

	m.mu.Lock()
	m.list = append([]models.Source{*created}, m.list...)
	m.mu.Unlock()
	return created, nil
}

func (m *Manager) Update(ctx context.Context, id int64, u models.SourceUpdate) (*models.Source, error) {
	m.clearError()
	if err := validateUpdate(u); err != nil {
		m.fail("updating", err)
		return nil, err
	}

	updated, err := m.repo.UpdateSource(ctx, id, u)
	if err != nil {
		m.fail("updating", err)
		return nil, err
	}

	m.mu.Lock()
	for i := range m.list {
		if m.list[i].ID == id {
			m.list[i] = *updated
		}
	}
	m.mu.Unlock()
	return updated, nil
}

// Delete removes the source remotely and then locally. Deleting a row that
// no longer exists remotely still drops it from the local list.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	m.clearError()
	if err := m.repo.DeleteSource(ctx, id); err != nil && !errors.Is(err, db.ErrNotFound) {
		m.fail("deleting", err)
		return err
	}

	m.mu.Lock()
	kept := m.list[:0:0]
	for _, s := range m.list {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	m.list = kept
	m.mu.Unlock()
	return nil
}

// ToggleActive flips is_active based on the locally cached row. It fails
// with ErrNotFound when id is not in the local list, even if the row exists
// remotely.
func (m *Manager) ToggleActive(ctx context.Context, id int64) (*models.Source, error) {
	current, ok := m.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	next := !current.IsActive
	return m.Update(ctx, id, models.SourceUpdate{IsActive: &next})
}

func (m *Manager) clearError() {
	m.mu.Lock()
	m.errMsg = ""
	m.mu.Unlock()
}

func (m *Manager) fail(op string, err error) {
	log.Printf("Error %s source: %v", op, err)
	m.mu.Lock()
	m.errMsg = db.ErrorMessage(err)
	m.mu.Unlock()
}

func validateInsert(in models.SourceInsert) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSource)
	}
	if err := validateURL(in.URL); err != nil {
		return err
	}
	if in.SourceType != nil {
		return validateType(*in.SourceType)
	}
	return nil
}

func validateUpdate(u models.SourceUpdate) error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidSource)
	}
	if u.URL != nil {
		if err := validateURL(*u.URL); err != nil {
			return err
		}
	}
	if u.SourceType != nil {
		return validateType(*u.SourceType)
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidSource)
	}
	return nil
}

// Types lists the source types the crawler understands.
var Types = []string{"website", "rss"}

func validateType(t string) error {
	for _, known := range Types {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown source type %q", ErrInvalidSource, t)
}
