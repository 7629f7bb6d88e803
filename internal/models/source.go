package models

import "time"

type Source struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Description   *string    `json:"description"`
	SourceType    *string    `json:"source_type"`
	IsActive      bool       `json:"is_active"`
	LastCrawledAt *time.Time `json:"last_crawled_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SourceInsert mirrors the columns accepted on create. IsActive defaults to
// true in the table when omitted.
type SourceInsert struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Description *string `json:"description,omitempty"`
	SourceType  *string `json:"source_type,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// SourceUpdate is a partial update; nil fields are left untouched.
type SourceUpdate struct {
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
	SourceType  *string `json:"source_type,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (u SourceUpdate) IsEmpty() bool {
	return u.Name == nil && u.URL == nil && u.Description == nil && u.SourceType == nil && u.IsActive == nil
}
