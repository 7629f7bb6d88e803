package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/david/funding-monitor/internal/models"
)

// callKeywords mark links that likely lead to a funding call.
var callKeywords = []string{
	"förder",
	"foerder",
	"ausschreibung",
	"aufruf",
	"wettbewerb",
	"programm",
	"call",
	"grant",
	"funding",
}

// WebsiteStrategy scrapes a listing page with colly and keeps the links that
// look like funding calls.
type WebsiteStrategy struct {
	transport http.RoundTripper
	timeout   time.Duration
	maxItems  int
}

func NewWebsiteStrategy(transport http.RoundTripper, timeout time.Duration, maxItems int) *WebsiteStrategy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebsiteStrategy{transport: transport, timeout: timeout, maxItems: maxItems}
}

func (s *WebsiteStrategy) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxBodySize(10*1024*1024),
		colly.AllowURLRevisit(),
	)
	if s.transport != nil {
		c.WithTransport(s.transport)
	}
	c.SetRequestTimeout(s.timeout)
	c.SetRedirectHandler(safeCheckRedirect)
	return c
}

func (s *WebsiteStrategy) Fetch(ctx context.Context, src models.Source) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := s.newCollector()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")
	})

	var (
		items    []Item
		fetchErr error
	)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		base := e.Request.URL
		items = extractCallLinks(e.DOM, base, s.maxItems)
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", r.Request.URL, r.StatusCode, err)
	})

	if err := c.Visit(src.URL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("visit %s: %w", src.URL, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// extractCallLinks returns one item per distinct link whose text or target
// mentions a funding keyword. Navigation chrome is skipped.
func extractCallLinks(root *goquery.Selection, base *url.URL, maxItems int) []Item {
	var items []Item
	seen := make(map[string]bool)

	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if maxItems > 0 && len(items) >= maxItems {
			return
		}
		if a.ParentsFiltered("nav, header, footer").Length() > 0 {
			return
		}

		title := normalizeSpace(a.Text())
		if title == "" {
			title = normalizeSpace(a.AttrOr("title", ""))
		}
		if len([]rune(title)) < 8 {
			return
		}

		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "mailto:") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		target := ref
		if base != nil {
			target = base.ResolveReference(ref)
		}
		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}

		if !mentionsCall(title) && !mentionsCall(target.Path) {
			return
		}

		link := canonicalURL(target.String())
		if seen[link] {
			return
		}
		seen[link] = true

		// The closest list item or article usually carries a teaser.
		teaser := a.Closest("li, article, .teaser, tr")
		description := ""
		if teaser.Length() > 0 {
			description = normalizeSpace(teaser.Text())
		}
		if description == title {
			description = ""
		}

		items = append(items, Item{
			Title:       title,
			Link:        link,
			Description: description,
			Deadline:    findDeadline(description),
		})
	})

	return items
}

func mentionsCall(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range callKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
