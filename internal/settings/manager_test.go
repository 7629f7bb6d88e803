package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/david/funding-monitor/internal/models"
	"github.com/google/uuid"
)

type fakeRepo struct {
	rows    []models.UserFundingCall
	err     error
	upserts []models.FundingCallSettings
}

func (f *fakeRepo) ListUserFundingCalls(ctx context.Context, userID uuid.UUID) ([]models.UserFundingCall, error) {
	return f.rows, f.err
}

func (f *fakeRepo) UpsertUserFundingCall(ctx context.Context, userID uuid.UUID, callID int64, s models.FundingCallSettings) (*models.UserFundingCall, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, s)
	return &models.UserFundingCall{UserID: userID, FundingCallID: callID, Settings: s}, nil
}

func strPtr(s string) *string { return &s }

func TestManager_UpdateMergesWithCachedSettings(t *testing.T) {
	yes := true
	repo := &fakeRepo{rows: []models.UserFundingCall{
		{FundingCallID: 5, Settings: models.FundingCallSettings{Favorite: &yes, Notes: strPtr("erste Notiz")}},
	}}
	m := NewManager(repo, uuid.New())
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	merged, err := m.Update(context.Background(), 5, models.FundingCallSettings{Priority: strPtr("high")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if merged.Favorite == nil || !*merged.Favorite || merged.Notes == nil || *merged.Priority != "high" {
		t.Fatalf("expected merge with cached settings, got %+v", merged)
	}
	if len(repo.upserts) != 1 || repo.upserts[0].Notes == nil {
		t.Fatalf("upsert must carry the merged blob, got %+v", repo.upserts)
	}
}

func TestManager_ToggleFavorite(t *testing.T) {
	m := NewManager(&fakeRepo{}, uuid.New())
	ctx := context.Background()

	if m.IsFavorite(1) {
		t.Fatal("unknown call must not be a favorite")
	}
	if _, err := m.ToggleFavorite(ctx, 1); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if !m.IsFavorite(1) {
		t.Fatal("expected favorite after first toggle")
	}
	m.ToggleFavorite(ctx, 1)
	if m.IsFavorite(1) {
		t.Fatal("expected no favorite after second toggle")
	}
	if s, ok := m.Get(1); !ok || s.Favorite == nil || *s.Favorite {
		t.Fatalf("expected stored favorite=false, got %+v", s)
	}
}

func TestManager_Errors(t *testing.T) {
	anon := NewManager(&fakeRepo{}, uuid.Nil)
	if _, err := anon.Update(context.Background(), 1, models.FundingCallSettings{}); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}

	repo := &fakeRepo{}
	m := NewManager(repo, uuid.New())
	if _, err := m.Update(context.Background(), 1, models.FundingCallSettings{Priority: strPtr("urgent")}); err == nil {
		t.Fatal("expected invalid priority error")
	}

	repo.err = errors.New("relation \"user_funding_calls\" does not exist")
	if _, err := m.Update(context.Background(), 1, models.FundingCallSettings{Notes: strPtr("x")}); err == nil {
		t.Fatal("expected store error")
	}
	st := m.Snapshot()
	if st.Error == nil || len(st.Settings) != 0 {
		t.Fatalf("failed write must record the error and leave the cache untouched: %+v", st)
	}
	if _, ok := m.Get(1); ok {
		t.Fatal("no settings may be cached after a failed write")
	}
}
