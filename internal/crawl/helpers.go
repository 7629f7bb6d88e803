package crawl

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/funding-monitor/internal/fundingcalls"
)

// normalizeSpace collapses runs of whitespace into one space and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// appendUnique appends v unless the list already holds it, ignoring case.
func appendUnique(list []string, v string) []string {
	v = normalizeSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}

// htmlToText converts an HTML fragment to plain text.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeSpace(html)
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeSpace(doc.Text())
}

func truncate(text string, maxRunes int) string {
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	if maxRunes > 3 {
		return string(r[:maxRunes-3]) + "..."
	}
	return string(r[:maxRunes])
}

// canonicalURL drops fragments and tracking parameters so the same call is
// not stored twice under different links.
func canonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var deadlineKeywordRegex = regexp.MustCompile(`(?i)(einreichungsfrist|antragsfrist|bewerbungsfrist|bewerbungsschluss|einsendeschluss|stichtag|frist|deadline|closing date)`)

// findDeadline looks for a date shortly after a deadline keyword and returns
// it as YYYY-MM-DD.
func findDeadline(text string) string {
	for _, loc := range deadlineKeywordRegex.FindAllStringIndex(text, -1) {
		end := loc[1] + 60
		if end > len(text) {
			end = len(text)
		}
		if t, ok := fundingcalls.ParseDeadline(text[loc[1]:end]); ok {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
