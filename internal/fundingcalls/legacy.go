package fundingcalls

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/david/funding-monitor/internal/models"
	"github.com/tidwall/gjson"
)

const (
	legacySuitableScore   = 0.8
	legacyUnsuitableScore = 0.2
)

// LegacyCall is the flat record shape of the first scraper exports,
// recognisable by its call_id field.
type LegacyCall struct {
	CallID        json.RawMessage `json:"call_id"`
	Name          string          `json:"name"`
	Summary       string          `json:"summary"`
	Deadline      string          `json:"deadline"`
	FundingAmount string          `json:"funding_amount"`
	Duration      string          `json:"duration"`
	Suitable      bool            `json:"suitable"`
	Reason        string          `json:"reason"`
	URL           string          `json:"url"`
	Categories    []string        `json:"categories"`
	TargetGroups  []string        `json:"target_groups"`
}

// ToRow converts a legacy record into the current row shape. fallbackID is
// used when call_id is not numeric.
func (l LegacyCall) ToRow(fallbackID int64) models.FundingCall {
	score := legacyUnsuitableScore
	if l.Suitable {
		score = legacySuitableScore
	}

	categories := l.Categories
	if categories == nil {
		categories = []string{}
	}
	targetGroups := l.TargetGroups
	if targetGroups == nil {
		targetGroups = []string{}
	}

	details, _ := json.Marshal(map[string]interface{}{
		"deadline":         l.Deadline,
		"funding_amount":   l.FundingAmount,
		"duration":         l.Duration,
		"categories":       categories,
		"target_groups":    targetGroups,
		"relevance_score":  score,
		"relevance_reason": l.Reason,
	})

	row := models.FundingCall{
		ID:          legacyID(l.CallID, fallbackID),
		Title:       l.Name,
		Description: optional(l.Summary),
		Deadline:    optional(l.Deadline),
		SourceURL:   optional(l.URL),
		Details:     details,
	}
	return row
}

func legacyID(raw json.RawMessage, fallback int64) int64 {
	if len(raw) == 0 {
		return fallback
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type Kind int

const (
	KindCurrent Kind = iota
	KindLegacy
)

func (k Kind) String() string {
	if k == KindLegacy {
		return "legacy"
	}
	return "current"
}

// Batch is a decoded funding-call document. Exactly one of Current and
// Legacy is populated, according to Kind.
type Batch struct {
	Kind    Kind
	Current []models.FundingCall
	Legacy  []LegacyCall
}

var ErrNotAList = errors.New("funding call document is not a list")

// DecodeBatch reads a JSON document holding funding calls, either as a bare
// array or wrapped in {"funding_calls": [...]}, and detects its shape once.
// Elements are read field by field: a value of an unexpected type leaves that
// field empty instead of failing the whole document.
func DecodeBatch(data []byte) (Batch, error) {
	if !gjson.ValidBytes(data) {
		return Batch{}, errors.New("invalid JSON in funding call document")
	}

	list := gjson.ParseBytes(data)
	if list.IsObject() {
		list = list.Get("funding_calls")
	}
	if !list.IsArray() {
		return Batch{}, ErrNotAList
	}

	items := list.Array()
	if len(items) > 0 && items[0].Get("call_id").Exists() {
		legacy := make([]LegacyCall, 0, len(items))
		for _, item := range items {
			if item.IsObject() {
				legacy = append(legacy, legacyFromJSON(item))
			}
		}
		return Batch{Kind: KindLegacy, Legacy: legacy}, nil
	}

	current := make([]models.FundingCall, 0, len(items))
	for _, item := range items {
		if item.IsObject() {
			current = append(current, rowFromJSON(item))
		}
	}
	return Batch{Kind: KindCurrent, Current: current}, nil
}

func legacyFromJSON(v gjson.Result) LegacyCall {
	return LegacyCall{
		CallID:        json.RawMessage(v.Get("call_id").Raw),
		Name:          text(v.Get("name")),
		Summary:       text(v.Get("summary")),
		Deadline:      text(v.Get("deadline")),
		FundingAmount: amountText(v.Get("funding_amount")),
		Duration:      text(v.Get("duration")),
		Suitable:      v.Get("suitable").Bool(),
		Reason:        text(v.Get("reason")),
		URL:           text(v.Get("url")),
		Categories:    stringList(v.Get("categories")),
		TargetGroups:  stringList(v.Get("target_groups")),
	}
}

func rowFromJSON(v gjson.Result) models.FundingCall {
	row := models.FundingCall{
		ID:             v.Get("id").Int(),
		Title:          text(v.Get("title")),
		Description:    firstString(v.Get("description")),
		Deadline:       firstString(v.Get("deadline")),
		SourceURL:      firstString(v.Get("source_url")),
		FundingAmount:  optional(amountText(v.Get("funding_amount"))),
		Duration:       firstString(v.Get("duration")),
		RelevanceScore: numberField(v.Get("relevance_score")),
		Details:        blob(v.Get("details")),
		Data:           blob(v.Get("data")),
		CreatedAt:      timestamp(v.Get("created_at")),
		UpdatedAt:      timestamp(v.Get("updated_at")),
	}
	if id := v.Get("source_id"); id.Type == gjson.Number {
		n := id.Int()
		row.SourceID = &n
	}
	return row
}

// text returns strings and numbers as trimmed text and everything else as "".
func text(v gjson.Result) string {
	if s := firstString(v); s != nil {
		return *s
	}
	return ""
}

// amountText keeps textual amounts as written and formats bare numbers.
func amountText(v gjson.Result) string {
	if v.Type == gjson.Number {
		return FormatAmount(v.Float()) + " EUR"
	}
	return text(v)
}

// blob keeps an embedded object, or a string holding one, as raw JSON.
func blob(v gjson.Result) json.RawMessage {
	switch {
	case v.IsObject():
		return json.RawMessage(v.Raw)
	case v.Type == gjson.String:
		inner := gjson.Parse(v.String())
		if inner.IsObject() {
			return json.RawMessage(inner.Raw)
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timestamp parses the layouts exports have used; anything else is nil.
func timestamp(v gjson.Result) *time.Time {
	if v.Type != gjson.String {
		return nil
	}
	raw := strings.TrimSpace(v.String())
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// Rows returns the batch in the current row shape.
func (b Batch) Rows() []models.FundingCall {
	if b.Kind != KindLegacy {
		return b.Current
	}
	rows := make([]models.FundingCall, 0, len(b.Legacy))
	for i, l := range b.Legacy {
		rows = append(rows, l.ToRow(int64(i+1)))
	}
	return rows
}
