package models

import (
	"encoding/json"
	"time"
)

// FundingCall is a funding_calls row as stored by the crawler. Optional
// columns stay pointers so a NULL is distinguishable from an empty value.
type FundingCall struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Description    *string         `json:"description"`
	Deadline       *string         `json:"deadline"`
	SourceURL      *string         `json:"source_url"`
	FundingAmount  *string         `json:"funding_amount"`
	Duration       *string         `json:"duration"`
	RelevanceScore *float64        `json:"relevance_score"`
	Details        json.RawMessage `json:"details"`
	Data           json.RawMessage `json:"data,omitempty"` // older snapshots used "data" for the blob
	SourceID       *int64          `json:"source_id,omitempty"`
	CreatedAt      *time.Time      `json:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at"`
}

// FundingCallInput is what the crawler upserts, keyed by SourceURL.
type FundingCallInput struct {
	Title          string
	Description    string
	Deadline       string
	SourceURL      string
	SourceID       int64
	RelevanceScore *float64
	Details        map[string]interface{}
	Embedding      []float32
}
