package settings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNoUser          = errors.New("user must be logged in to update settings")
	ErrInvalidPriority = errors.New("invalid priority")
)

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

type Repository interface {
	ListUserFundingCalls(ctx context.Context, userID uuid.UUID) ([]models.UserFundingCall, error)
	UpsertUserFundingCall(ctx context.Context, userID uuid.UUID, callID int64, s models.FundingCallSettings) (*models.UserFundingCall, error)
}

type State struct {
	Settings map[int64]models.FundingCallSettings `json:"settings"`
	Loading  bool                                 `json:"loading"`
	Error    *string                              `json:"error"`
}

// Manager caches one user's per-call settings.
type Manager struct {
	repo   Repository
	userID uuid.UUID

	mu      sync.RWMutex
	byCall  map[int64]models.FundingCallSettings
	loading bool
	errMsg  string
}

func NewManager(repo Repository, userID uuid.UUID) *Manager {
	return &Manager{repo: repo, userID: userID, byCall: make(map[int64]models.FundingCallSettings)}
}

func (m *Manager) Load(ctx context.Context) error {
	if m.userID == uuid.Nil {
		m.mu.Lock()
		m.byCall = make(map[int64]models.FundingCallSettings)
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	m.loading = true
	m.errMsg = ""
	m.mu.Unlock()

	rows, err := m.repo.ListUserFundingCalls(ctx, m.userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		m.errMsg = db.ErrorMessage(err)
		log.Printf("Error loading user settings: %v", err)
		return err
	}

	byCall := make(map[int64]models.FundingCallSettings, len(rows))
	for _, row := range rows {
		byCall[row.FundingCallID] = row.Settings
	}
	m.byCall = byCall
	return nil
}

// Update merges patch into the cached settings for callID and writes the
// merged blob back.
func (m *Manager) Update(ctx context.Context, callID int64, patch models.FundingCallSettings) (models.FundingCallSettings, error) {
	if m.userID == uuid.Nil {
		return models.FundingCallSettings{}, ErrNoUser
	}
	if patch.Priority != nil && *patch.Priority != "" && !priorities[*patch.Priority] {
		err := fmt.Errorf("%w %q", ErrInvalidPriority, *patch.Priority)
		m.setError(err)
		return models.FundingCallSettings{}, err
	}

	m.mu.Lock()
	m.errMsg = ""
	merged := m.byCall[callID].Merge(patch)
	m.mu.Unlock()

	if _, err := m.repo.UpsertUserFundingCall(ctx, m.userID, callID, merged); err != nil {
		log.Printf("Error updating settings: %v", err)
		m.setError(err)
		return models.FundingCallSettings{}, err
	}

	m.mu.Lock()
	m.byCall[callID] = merged
	m.mu.Unlock()
	return merged, nil
}

func (m *Manager) ToggleFavorite(ctx context.Context, callID int64) (models.FundingCallSettings, error) {
	next := !m.IsFavorite(callID)
	return m.Update(ctx, callID, models.FundingCallSettings{Favorite: &next})
}

func (m *Manager) IsFavorite(callID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fav := m.byCall[callID].Favorite
	return fav != nil && *fav
}

// Get returns the settings for callID, or false when none were stored.
func (m *Manager) Get(callID int64) (models.FundingCallSettings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byCall[callID]
	return s, ok
}

func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{Settings: make(map[int64]models.FundingCallSettings, len(m.byCall)), Loading: m.loading}
	for id, s := range m.byCall {
		st.Settings[id] = s
	}
	if m.errMsg != "" {
		msg := m.errMsg
		st.Error = &msg
	}
	return st
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	m.errMsg = db.ErrorMessage(err)
	m.mu.Unlock()
}
