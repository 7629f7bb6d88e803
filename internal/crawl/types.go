package crawl

import (
	"time"
)

// Item is one funding call as found on a source, before it is cleaned and
// written to the store.
type Item struct {
	Title       string
	Link        string
	Description string
	Deadline    string
	Published   *time.Time
	Categories  []string
}

// Stats holds metrics about one source crawl.
type Stats struct {
	SourceID   int64     `json:"source_id"`
	SourceName string    `json:"source_name"`
	SourceType string    `json:"source_type"`
	Found      int       `json:"found"`
	Saved      int       `json:"saved"`
	Errors     int       `json:"errors"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
