package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FundingCallSettings is the per-user jsonb blob in user_funding_calls.
// Unknown keys are kept in Extra so they survive a merge.
type FundingCallSettings struct {
	Favorite     *bool
	Notes        *string
	Priority     *string // low, medium, high
	ReminderDate *string
	Extra        map[string]interface{}
}

// Merge returns s with every field set in patch applied on top.
func (s FundingCallSettings) Merge(patch FundingCallSettings) FundingCallSettings {
	out := s
	if patch.Favorite != nil {
		out.Favorite = patch.Favorite
	}
	if patch.Notes != nil {
		out.Notes = patch.Notes
	}
	if patch.Priority != nil {
		out.Priority = patch.Priority
	}
	if patch.ReminderDate != nil {
		out.ReminderDate = patch.ReminderDate
	}
	if len(patch.Extra) > 0 {
		extra := make(map[string]interface{}, len(s.Extra)+len(patch.Extra))
		for k, v := range s.Extra {
			extra[k] = v
		}
		for k, v := range patch.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

func (s FundingCallSettings) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Extra)+4)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Favorite != nil {
		out["favorite"] = *s.Favorite
	}
	if s.Notes != nil {
		out["notes"] = *s.Notes
	}
	if s.Priority != nil {
		out["priority"] = *s.Priority
	}
	if s.ReminderDate != nil {
		out["reminder_date"] = *s.ReminderDate
	}
	return json.Marshal(out)
}

func (s *FundingCallSettings) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*s = FundingCallSettings{}
	for k, v := range raw {
		switch k {
		case "favorite":
			if fav, ok := v.(bool); ok {
				s.Favorite = &fav
			}
		case "notes":
			if str, ok := v.(string); ok {
				s.Notes = &str
			}
		case "priority":
			if str, ok := v.(string); ok {
				s.Priority = &str
			}
		case "reminder_date":
			if str, ok := v.(string); ok {
				s.ReminderDate = &str
			}
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]interface{})
			}
			s.Extra[k] = v
		}
	}
	return nil
}

type UserFundingCall struct {
	UserID        uuid.UUID           `json:"user_id"`
	FundingCallID int64               `json:"funding_call_id"`
	Settings      FundingCallSettings `json:"settings"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
