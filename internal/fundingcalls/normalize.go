package fundingcalls

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/david/funding-monitor/internal/models"
	"github.com/tidwall/gjson"
)

// RelevanceThreshold is the score above which a call counts as relevant.
const RelevanceThreshold = 0.5

type RelevanceInfo struct {
	IsRelevant bool     `json:"is_relevant"`
	Reason     *string  `json:"reason,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// NormalizedFundingCall is the display projection of a funding_calls row.
type NormalizedFundingCall struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Description     *string       `json:"description,omitempty"`
	CreatedAt       *time.Time    `json:"created_at,omitempty"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty"`
	RelevanceInfo   RelevanceInfo `json:"relevance_info"`
	FundingAmount   *string       `json:"funding_amount,omitempty"`
	Duration        *string       `json:"duration,omitempty"`
	DisplayDeadline *string       `json:"display_deadline,omitempty"`
	SourceURL       *string       `json:"source_url,omitempty"`
	Categories      []string      `json:"categories"`
	TargetGroups    []string      `json:"target_groups"`
}

func detailsOf(row models.FundingCall) gjson.Result {
	for _, blob := range [][]byte{row.Details, row.Data} {
		if len(blob) == 0 || !gjson.ValidBytes(blob) {
			continue
		}
		res := gjson.ParseBytes(blob)
		if res.IsObject() {
			return res
		}
	}
	return gjson.Result{}
}

// Normalize projects a row for display. It never fails: missing or malformed
// detail blobs yield nil display fields.
func Normalize(row models.FundingCall) NormalizedFundingCall {
	details := detailsOf(row)

	out := NormalizedFundingCall{
		ID:           row.ID,
		Title:        row.Title,
		Description:  nonEmpty(row.Description),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Categories:   stringList(details.Get("categories")),
		TargetGroups: stringList(details.Get("target_groups")),
	}

	score := numberField(details.Get("relevance_score"))
	if score == nil && row.RelevanceScore != nil {
		v := *row.RelevanceScore
		score = &v
	}
	flagged := details.Get("is_relevant").Type == gjson.True
	out.RelevanceInfo = RelevanceInfo{
		IsRelevant: (score != nil && *score > RelevanceThreshold) || flagged,
		Score:      score,
		Reason:     firstString(details.Get("relevance_reason"), details.Get("reason")),
	}

	out.FundingAmount = fundingAmount(details)
	if out.FundingAmount == nil {
		out.FundingAmount = nonEmpty(row.FundingAmount)
	}

	out.Duration = firstString(details.Get("duration"))
	if out.Duration == nil {
		out.Duration = nonEmpty(row.Duration)
	}

	out.DisplayDeadline = firstString(details.Get("deadline"))
	if out.DisplayDeadline == nil {
		out.DisplayDeadline = nonEmpty(row.Deadline)
	}

	out.SourceURL = firstString(details.Get("source_url"))
	if out.SourceURL == nil {
		out.SourceURL = nonEmpty(row.SourceURL)
	}
	if out.SourceURL == nil {
		out.SourceURL = firstString(details.Get("url"))
	}

	return out
}

func NormalizeAll(rows []models.FundingCall) []NormalizedFundingCall {
	out := make([]NormalizedFundingCall, 0, len(rows))
	for _, row := range rows {
		out = append(out, Normalize(row))
	}
	return out
}

// Sort orders relevant calls first, then by most recent update. Calls without
// updated_at sort as if updated at the Unix epoch.
func Sort(calls []NormalizedFundingCall) {
	sort.SliceStable(calls, func(i, j int) bool {
		a, b := calls[i], calls[j]
		if a.RelevanceInfo.IsRelevant != b.RelevanceInfo.IsRelevant {
			return a.RelevanceInfo.IsRelevant
		}
		return updatedUnix(a) > updatedUnix(b)
	})
}

func updatedUnix(c NormalizedFundingCall) int64 {
	if c.UpdatedAt == nil {
		return 0
	}
	return c.UpdatedAt.UnixMilli()
}

func fundingAmount(details gjson.Result) *string {
	currency := strings.TrimSpace(details.Get("currency").String())
	if currency == "" {
		currency = "EUR"
	}

	amount := details.Get("funding_amount")
	switch amount.Type {
	case gjson.String:
		if s := strings.TrimSpace(amount.String()); s != "" {
			return &s
		}
	case gjson.Number:
		s := FormatAmount(amount.Float()) + " " + currency
		return &s
	}

	minAmount := numberField(details.Get("min_amount"))
	maxAmount := numberField(details.Get("max_amount"))
	if s := FormatAmountRange(minAmount, maxAmount, currency); s != "" {
		return &s
	}
	return nil
}

// FormatAmountRange renders "min - max CUR", "bis max CUR" or "ab min CUR".
func FormatAmountRange(minAmount, maxAmount *float64, currency string) string {
	if currency == "" {
		currency = "EUR"
	}
	hasMin := minAmount != nil && *minAmount > 0
	hasMax := maxAmount != nil && *maxAmount > 0
	switch {
	case hasMin && hasMax:
		return FormatAmount(*minAmount) + " - " + FormatAmount(*maxAmount) + " " + currency
	case hasMax:
		return "bis " + FormatAmount(*maxAmount) + " " + currency
	case hasMin:
		return "ab " + FormatAmount(*minAmount) + " " + currency
	}
	return ""
}

// FormatAmount formats v with German separators, e.g. 1.250.000 or 1.234,50.
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != "00" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

func numberField(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		return &f
	case gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
			return &f
		}
	}
	return nil
}

func firstString(values ...gjson.Result) *string {
	for _, v := range values {
		if v.Type != gjson.String && v.Type != gjson.Number {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return &s
		}
	}
	return nil
}

func stringList(v gjson.Result) []string {
	out := []string{}
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if s := strings.TrimSpace(item.String()); s != "" && item.Type != gjson.Null {
				out = append(out, s)
			}
		}
	case v.Type == gjson.String:
		for _, part := range strings.Split(v.String(), ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
