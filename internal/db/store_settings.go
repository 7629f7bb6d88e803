package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/david/funding-monitor/internal/models"
	"github.com/google/uuid"
)

func (s *Store) ListUserFundingCalls(ctx context.Context, userID uuid.UUID) ([]models.UserFundingCall, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, funding_call_id, settings, updated_at
		FROM user_funding_calls
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user funding calls: %w", err)
	}
	defer rows.Close()

	out := []models.UserFundingCall{}
	for rows.Next() {
		var row models.UserFundingCall
		var raw []byte
		if err := rows.Scan(&row.UserID, &row.FundingCallID, &raw, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user funding call: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &row.Settings); err != nil {
				return nil, fmt.Errorf("decode settings for call %d: %w", row.FundingCallID, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertUserFundingCall writes the full settings blob for (user, call).
func (s *Store) UpsertUserFundingCall(ctx context.Context, userID uuid.UUID, callID int64, settings models.FundingCallSettings) (*models.UserFundingCall, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	row := models.UserFundingCall{UserID: userID, FundingCallID: callID, Settings: settings}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO user_funding_calls (user_id, funding_call_id, settings)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id, funding_call_id) DO UPDATE SET
			settings = EXCLUDED.settings,
			updated_at = NOW()
		RETURNING updated_at
	`, userID, callID, string(raw)).Scan(&row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert settings for call %d: %w", callID, err)
	}
	return &row, nil
}
