package fundingcalls

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Urgency string

const (
	UrgencyError   Urgency = "error"
	UrgencyWarning Urgency = "warning"
	UrgencyDefault Urgency = "default"
)

// DeadlineDisplay is what the grid shows in the deadline column.
type DeadlineDisplay struct {
	Text     string  `json:"text"`
	Caption  string  `json:"caption,omitempty"`
	Urgency  Urgency `json:"urgency,omitempty"`
	DaysLeft *int    `json:"days_left,omitempty"`
}

var germanMonths = map[string]time.Month{
	"januar":    time.January,
	"jänner":    time.January,
	"februar":   time.February,
	"märz":      time.March,
	"maerz":     time.March,
	"april":     time.April,
	"mai":       time.May,
	"juni":      time.June,
	"juli":      time.July,
	"august":    time.August,
	"september": time.September,
	"oktober":   time.October,
	"november":  time.November,
	"dezember":  time.December,
}

var (
	germanMonthRegex = regexp.MustCompile(`(\d{1,2})\.\s*(\p{L}+)\s*(\d{4})`)
	germanNumRegex   = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	isoDateRegex     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

// ParseDeadline reads ISO, German and common English date strings. The
// result is the calendar day in UTC.
func ParseDeadline(text string) (time.Time, bool) {
	text = cleanDeadline(text)
	if text == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return dateOf(t), true
	}

	if m := germanMonthRegex.FindStringSubmatch(text); len(m) == 4 {
		if month, ok := germanMonths[strings.ToLower(m[2])]; ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			return calendarDate(year, month, day)
		}
	}

	if m := germanNumRegex.FindStringSubmatch(text); len(m) == 4 {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return calendarDate(year, time.Month(month), day)
	}

	englishFormats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2 January 2006",
		"02 January 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"01/02/2006",
	}
	for _, format := range englishFormats {
		if t, err := time.Parse(format, text); err == nil {
			return dateOf(t), true
		}
	}

	if m := isoDateRegex.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// calendarDate rejects days that time.Date would roll into the next month,
// such as 31.02.
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cleanDeadline(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range []string{"frist:", "antragsfrist:", "einreichungsfrist:", "deadline:", "closing date:"} {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			lower = strings.ToLower(s)
		}
	}
	return s
}

// FormatDeadline renders a deadline relative to now. Missing deadlines show
// "-", unparseable ones show the raw text without urgency.
func FormatDeadline(raw *string, now time.Time) DeadlineDisplay {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return DeadlineDisplay{Text: "-"}
	}

	deadline, ok := ParseDeadline(*raw)
	if !ok {
		return DeadlineDisplay{Text: strings.TrimSpace(*raw)}
	}

	days := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	d := DeadlineDisplay{
		Text:     deadline.Format("02.01.2006"),
		DaysLeft: &days,
		Urgency:  urgencyFor(days),
	}
	if days > 0 {
		d.Caption = fmt.Sprintf("%d Tage", days)
	} else {
		d.Caption = "Abgelaufen"
	}
	return d
}

func urgencyFor(days int) Urgency {
	switch {
	case days <= 7:
		return UrgencyError
	case days <= 30:
		return UrgencyWarning
	default:
		return UrgencyDefault
	}
}
