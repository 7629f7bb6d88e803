package fundingcalls

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/david/funding-monitor/internal/db"
	"github.com/david/funding-monitor/internal/models"
)

// Repository is the store surface the loader reads from.
type Repository interface {
	ListFundingCalls(ctx context.Context) ([]models.FundingCall, error)
}

// RowSource is anything that yields raw rows, e.g. a MockLoader.
type RowSource interface {
	Load(ctx context.Context) ([]models.FundingCall, error)
}

// State is a point-in-time copy of the loader.
type State struct {
	FundingCalls  []NormalizedFundingCall `json:"funding_calls"`
	Loading       bool                    `json:"loading"`
	Error         *string                 `json:"error"`
	UsingMockData bool                    `json:"using_mock_data"`
	LoadedAt      *time.Time              `json:"loaded_at,omitempty"`
}

// Loader holds the normalized, sorted funding-call list shared by all
// dashboard sessions. It loads lazily and reloads only on Refetch.
type Loader struct {
	repo Repository
	mock RowSource

	mu       sync.RWMutex
	calls    []NormalizedFundingCall
	loading  bool
	errMsg   string
	loadedAt time.Time
}

// NewLoader reads from repo, or from mock when mock is non-nil.
func NewLoader(repo Repository, mock RowSource) *Loader {
	return &Loader{
		repo:    repo,
		mock:    mock,
		calls:   []NormalizedFundingCall{},
		loading: true,
	}
}

func (l *Loader) UsingMockData() bool {
	return l.mock != nil
}

// Refetch reloads the list. On failure the previous list is kept and the
// error message is recorded; there is no retry.
func (l *Loader) Refetch(ctx context.Context) State {
	l.mu.Lock()
	l.loading = true
	l.errMsg = ""
	l.mu.Unlock()

	rows, err := l.fetch(ctx)

	l.mu.Lock()
	l.loading = false
	if err != nil {
		l.errMsg = db.ErrorMessage(err)
		log.Printf("Error fetching funding calls: %v", err)
	} else {
		calls := NormalizeAll(rows)
		Sort(calls)
		l.calls = calls
		l.loadedAt = time.Now()
	}
	l.mu.Unlock()

	return l.Snapshot()
}

func (l *Loader) fetch(ctx context.Context) ([]models.FundingCall, error) {
	if l.mock != nil {
		return l.mock.Load(ctx)
	}
	return l.repo.ListFundingCalls(ctx)
}

// EnsureLoaded performs the initial fetch if none has completed yet.
func (l *Loader) EnsureLoaded(ctx context.Context) State {
	l.mu.RLock()
	loaded := !l.loadedAt.IsZero() || l.errMsg != ""
	l.mu.RUnlock()
	if loaded {
		return l.Snapshot()
	}
	return l.Refetch(ctx)
}

func (l *Loader) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := State{
		FundingCalls:  make([]NormalizedFundingCall, len(l.calls)),
		Loading:       l.loading,
		UsingMockData: l.mock != nil,
	}
	copy(st.FundingCalls, l.calls)
	if l.errMsg != "" {
		msg := l.errMsg
		st.Error = &msg
	}
	if !l.loadedAt.IsZero() {
		at := l.loadedAt
		st.LoadedAt = &at
	}
	return st
}
